package devices

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/engine/enginetest"
	"github.com/capturectl/capturectl/internal/platform"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func linuxProfile(t *testing.T) platform.Profile {
	t.Helper()
	p, err := platform.For("linux")
	require.NoError(t, err)
	return p
}

func withAudio(fake *enginetest.Engine, p platform.Profile) {
	fake.DeviceLists[p.OutputAudio] = engine.Property{Name: p.AudioProperty, Items: []engine.PropertyItem{
		{Name: "Default", Value: "default"},
		{Name: "Speakers", Value: "alsa_output.speakers"},
		{Name: "HDMI", Value: "alsa_output.hdmi"},
	}}
	fake.DeviceLists[p.InputAudio] = engine.Property{Name: p.AudioProperty, Items: []engine.PropertyItem{
		{Name: "Microphone", Value: "alsa_input.mic"},
	}}
}

func TestListAudioDevices(t *testing.T) {
	t.Parallel()
	p := linuxProfile(t)
	fake := enginetest.New()
	withAudio(fake, p)
	cat := NewCatalog(fake, p, nil)

	outputs, err := cat.ListAudioDevices(OutputAudio)
	require.NoError(t, err)
	assert.Equal(t, []Device{
		{ID: "default", Name: "Default", Kind: OutputAudio},
		{ID: "alsa_output.speakers", Name: "Speakers", Kind: OutputAudio},
		{ID: "alsa_output.hdmi", Name: "HDMI", Kind: OutputAudio},
	}, outputs)

	inputs, err := cat.ListAudioDevices(InputAudio)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "alsa_input.mic", inputs[0].ID)

	probes := fake.Inputs()
	require.Len(t, probes, 2)
	for _, probe := range probes {
		assert.True(t, probe.Released(), "probe %s not released", probe.Name())
		assert.Equal(t, engine.ProbeDeviceID, probe.Settings()[p.AudioProperty])
	}
}

func TestListAudioDevicesUsesCache(t *testing.T) {
	t.Parallel()
	p := linuxProfile(t)
	fake := enginetest.New()
	withAudio(fake, p)
	cat := NewCatalog(fake, p, nil, WithCacheTTL(time.Minute))

	first, err := cat.ListAudioDevices(OutputAudio)
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := cat.ListAudioDevices(OutputAudio)
	require.NoError(t, err)
	assert.Equal(t, "Default", second[0].Name)
	assert.Len(t, fake.Inputs(), 1)

	cat.Invalidate()
	_, err = cat.ListAudioDevices(OutputAudio)
	require.NoError(t, err)
	assert.Len(t, fake.Inputs(), 2)
}

func TestListAudioDevicesWithoutCache(t *testing.T) {
	t.Parallel()
	p := linuxProfile(t)
	fake := enginetest.New()
	withAudio(fake, p)
	cat := NewCatalog(fake, p, nil, WithCacheTTL(0))

	for range 3 {
		_, err := cat.ListAudioDevices(InputAudio)
		require.NoError(t, err)
	}
	assert.Len(t, fake.Inputs(), 3)
}

func TestListAudioDevicesRejectsVideoKinds(t *testing.T) {
	t.Parallel()
	cat := NewCatalog(enginetest.New(), linuxProfile(t), nil)

	_, err := cat.ListAudioDevices(CameraVideo)
	require.Error(t, err)
}

func TestListAudioDevicesMissingProperty(t *testing.T) {
	t.Parallel()
	fake := enginetest.New()
	cat := NewCatalog(fake, linuxProfile(t), nil)

	list, err := cat.ListAudioDevices(OutputAudio)
	require.NoError(t, err)
	assert.Empty(t, list)
	require.Len(t, fake.Inputs(), 1)
	assert.True(t, fake.Inputs()[0].Released())
}

func withCamera(fake *enginetest.Engine, p platform.Profile, size enginetest.Size) {
	fake.DeviceLists[p.Camera] = engine.Property{Name: p.CameraProperty, Items: []engine.PropertyItem{
		{Name: "Integrated Camera", Value: "/dev/video0"},
		{Name: "USB Camera", Value: "/dev/video2"},
	}}
	fake.Sizes[p.Camera] = size
}

func TestProbeCameraReady(t *testing.T) {
	t.Parallel()
	p := linuxProfile(t)
	fake := enginetest.New()
	withCamera(fake, p, enginetest.Size{Width: 1280, Height: 720, ReadyAfter: 2})
	rec := &sleepRecorder{}
	cat := NewCatalog(fake, p, nil, WithSleep(rec.sleep))

	camera, err := cat.ProbeCamera()
	require.NoError(t, err)
	require.NotNil(t, camera)
	assert.Equal(t, 1280, camera.Width())
	assert.Equal(t, "video", camera.Name())
	assert.Equal(t, "/dev/video0", camera.Settings()[p.CameraProperty])
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.recorded())

	inputs := fake.Inputs()
	require.Len(t, inputs, 2)
	assert.True(t, inputs[0].Released(), "probe must be released")
	assert.False(t, inputs[1].Released(), "camera must stay alive")
}

func TestProbeCameraNeverReady(t *testing.T) {
	t.Parallel()
	p := linuxProfile(t)
	fake := enginetest.New()
	withCamera(fake, p, enginetest.Size{Width: 1280, Height: 720, ReadyAfter: -1})
	rec := &sleepRecorder{}
	cat := NewCatalog(fake, p, nil, WithSleep(rec.sleep))

	camera, err := cat.ProbeCamera()
	require.NoError(t, err)
	assert.Nil(t, camera)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		400 * time.Millisecond,
	}, rec.recorded())

	for _, in := range fake.Inputs() {
		assert.True(t, in.Released())
	}
}

func TestProbeCameraNoDevices(t *testing.T) {
	t.Parallel()
	fake := enginetest.New()
	rec := &sleepRecorder{}
	cat := NewCatalog(fake, linuxProfile(t), nil, WithSleep(rec.sleep))

	camera, err := cat.ProbeCamera()
	require.NoError(t, err)
	assert.Nil(t, camera)
	assert.Empty(t, rec.recorded())
	assert.Equal(t, []string{"CreateInput:v4l2_input"}, fake.Calls())
}

func TestProbeCameraWindowsBindsAudioSentinel(t *testing.T) {
	t.Parallel()
	p, err := platform.For("windows")
	require.NoError(t, err)
	fake := enginetest.New()
	withCamera(fake, p, enginetest.Size{Width: 640, Height: 480})
	cat := NewCatalog(fake, p, nil, WithSleep(func(time.Duration) {}))

	camera, err := cat.ProbeCamera()
	require.NoError(t, err)
	require.NotNil(t, camera)

	probe := fake.Inputs()[0]
	assert.Equal(t, engine.ProbeDeviceID, probe.Settings()["audio_device_id"])
}

func TestKindString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "output_audio", OutputAudio.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
