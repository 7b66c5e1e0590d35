package scene

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturectl/capturectl/internal/devices"
	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/engine/enginetest"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/platform"
	"github.com/capturectl/capturectl/internal/settings"
)

type fixture struct {
	fake    *enginetest.Engine
	profile platform.Profile
	builder *Builder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	profile, err := platform.For("windows")
	require.NoError(t, err)

	fake := enginetest.New()
	fake.Categories["Output"] = enginetest.OutputCategory("obs_x264")
	fake.Categories["Video"] = enginetest.VideoCategory()

	catalog := devices.NewCatalog(fake, profile, nil,
		devices.WithCacheTTL(0),
		devices.WithSleep(func(time.Duration) {}))
	store := settings.New(fake, nil)

	return &fixture{
		fake:    fake,
		profile: profile,
		builder: NewBuilder(fake, store, catalog, profile, opts, nil),
	}
}

func (f *fixture) outputDevices(items ...engine.PropertyItem) {
	f.fake.DeviceLists[f.profile.OutputAudio] = engine.Property{Name: f.profile.AudioProperty, Items: items}
}

func (f *fixture) inputDevices(items ...engine.PropertyItem) {
	f.fake.DeviceLists[f.profile.InputAudio] = engine.Property{Name: f.profile.AudioProperty, Items: items}
}

func TestBuildQHDDisplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{Name: "main"})

	sc, err := f.builder.Build(DisplayInfo{Width: 2560, Height: 1440, ScaleFactor: 1})
	require.NoError(t, err)

	assert.Equal(t, 1920, sc.OutputWidth)
	assert.Equal(t, 1080, sc.OutputHeight)
	assert.InDelta(t, 2560.0/1920.0, sc.VideoScaleFactor, 1e-9)
	assert.Nil(t, sc.Camera)
	assert.Equal(t, "main", sc.Name())

	base, _ := f.fake.Value("Video", "Base")
	out, _ := f.fake.Value("Video", "Output")
	assert.Equal(t, "1920x1080", base)
	assert.Equal(t, "1920x1080", out)

	display := sc.Display.(*enginetest.Input)
	assert.Equal(t, "monitor_capture", display.Kind())
	assert.Equal(t, "desktop-video", display.Name())
	assert.Equal(t, 2560, display.Settings()["width"])
	assert.Equal(t, 1440, display.Settings()["height"])
	assert.Equal(t, 1, display.SaveCount())

	scenes := f.fake.Scenes()
	require.Len(t, scenes, 1)
	items := scenes[0].Items()
	require.Len(t, items, 1)
	assert.InDelta(t, 0.75, items[0].Scale.X, 1e-9)
	assert.InDelta(t, 0.75, items[0].Scale.Y, 1e-9)

	assert.Equal(t, "main", f.fake.OutputSources()[1])
}

func TestBuildHiDPIDisplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})

	sc, err := f.builder.Build(DisplayInfo{Width: 1440, Height: 900, ScaleFactor: 2})
	require.NoError(t, err)

	assert.Equal(t, 1920, sc.OutputWidth)
	assert.Equal(t, 1200, sc.OutputHeight)
	assert.InDelta(t, 1.5, sc.VideoScaleFactor, 1e-9)
	assert.Equal(t, 2880, sc.Display.Settings()["width"])
}

func TestBuildRejectsEmptyDisplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})

	_, err := f.builder.Build(DisplayInfo{})
	require.Error(t, err)
	assert.Empty(t, f.fake.Calls())
}

func TestBuildWithCamera(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{Camera: true})
	f.fake.DeviceLists[f.profile.Camera] = engine.Property{
		Name:  f.profile.CameraProperty,
		Items: []engine.PropertyItem{{Name: "Webcam", Value: "cam0"}},
	}
	f.fake.Sizes[f.profile.Camera] = enginetest.Size{Width: 1280, Height: 720}

	sc, err := f.builder.Build(DisplayInfo{Width: 1920, Height: 1080, ScaleFactor: 1})
	require.NoError(t, err)
	require.NotNil(t, sc.Camera)

	items := f.fake.Scenes()[0].Items()
	require.Len(t, items, 2)
	cam := items[1]
	assert.InDelta(t, 0.5, cam.Scale.X, 1e-9)
	assert.InDelta(t, 1920-640-192.0, cam.Position.X, 1e-9)
	assert.InDelta(t, 1080-360-108.0, cam.Position.Y, 1e-9)
}

func TestBuildCameraMissingIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{Camera: true})
	f.fake.DeviceLists[f.profile.Camera] = engine.Property{
		Name:  f.profile.CameraProperty,
		Items: []engine.PropertyItem{{Name: "Webcam", Value: "cam0"}},
	}
	f.fake.Sizes[f.profile.Camera] = enginetest.Size{Width: 1280, Height: 720, ReadyAfter: -1}

	sc, err := f.builder.Build(DisplayInfo{Width: 1920, Height: 1080, ScaleFactor: 1})
	require.NoError(t, err)
	assert.Nil(t, sc.Camera)
	assert.Len(t, f.fake.Scenes()[0].Items(), 1)
}

func TestBuildReleasesCameraWhenPlacementFails(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"add fails", func(f *fixture) {
			f.fake.AddErrs = map[string]error{f.profile.Camera: errors.NewStd("scene item limit")}
		}},
		{"scale fails", func(f *fixture) {
			f.fake.ScaleErrs = map[string]error{f.profile.Camera: errors.NewStd("transform rejected")}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, Options{Camera: true})
			f.fake.DeviceLists[f.profile.Camera] = engine.Property{
				Name:  f.profile.CameraProperty,
				Items: []engine.PropertyItem{{Name: "Webcam", Value: "cam0"}},
			}
			f.fake.Sizes[f.profile.Camera] = enginetest.Size{Width: 1280, Height: 720}
			tt.setup(f)

			sc, err := f.builder.Build(DisplayInfo{Width: 1920, Height: 1080, ScaleFactor: 1})
			require.NoError(t, err)
			assert.Nil(t, sc.Camera)

			var cameras int
			for _, in := range f.fake.Inputs() {
				if in.Kind() != f.profile.Camera {
					continue
				}
				cameras++
				assert.True(t, in.Released(), "camera input %q left open", in.Name())
			}
			assert.Positive(t, cameras)
		})
	}
}

func TestBuildCarriesDisplayAspect(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})

	sc, err := f.builder.Build(DisplayInfo{Width: 1366, Height: 768, ScaleFactor: 1})
	require.NoError(t, err)

	assert.Equal(t, 1079, sc.OutputHeight)
	assert.InDelta(t, 1366.0/768.0, sc.DisplayAspect, 1e-9)
	assert.NotEqual(t, float64(sc.OutputWidth)/float64(sc.OutputHeight), sc.DisplayAspect)
}

func TestRouteAudioSkipsDefault(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	f.outputDevices(
		engine.PropertyItem{Name: "Default", Value: "default"},
		engine.PropertyItem{Name: "Speakers", Value: "spk"},
		engine.PropertyItem{Name: "Headphones", Value: "hp"},
	)

	tracks, err := f.builder.RouteAudio()
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	assert.Equal(t, 2, tracks[0].Number)
	assert.Equal(t, uint32(3), tracks[0].Mixers)
	assert.Equal(t, 3, tracks[1].Number)
	assert.Equal(t, uint32(5), tracks[1].Mixers)

	assert.Equal(t, uint32(3), tracks[0].Input.(*enginetest.Input).Mixers())
	assert.Equal(t, "hp", tracks[1].Input.Settings()[f.profile.AudioProperty])

	recTracks, _ := f.fake.Value("Output", "RecTracks")
	assert.EqualValues(t, 7, recTracks)
	name2, _ := f.fake.Value("Output", "Track2Name")
	name3, _ := f.fake.Value("Output", "Track3Name")
	assert.Equal(t, "Speakers", name2)
	assert.Equal(t, "Headphones", name3)

	sources := f.fake.OutputSources()
	assert.Equal(t, "desktop-audio-2", sources[2])
	assert.Equal(t, "desktop-audio-3", sources[3])
}

func TestRouteAudioOutputsBeforeInputs(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	f.outputDevices(engine.PropertyItem{Name: "Speakers", Value: "spk"})
	f.inputDevices(
		engine.PropertyItem{Name: "Default", Value: "default"},
		engine.PropertyItem{Name: "Mic", Value: "mic"},
	)

	tracks, err := f.builder.RouteAudio()
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, devices.OutputAudio, tracks[0].Kind)
	assert.Equal(t, devices.InputAudio, tracks[1].Kind)
	assert.Equal(t, "mic-audio-3", tracks[1].Input.Name())
	assert.Equal(t, "wasapi_input_capture", tracks[1].Input.Kind())
}

func TestRouteAudioCapsTracks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{MaxTracks: 3})
	f.outputDevices(
		engine.PropertyItem{Name: "A", Value: "a"},
		engine.PropertyItem{Name: "B", Value: "b"},
		engine.PropertyItem{Name: "C", Value: "c"},
	)

	tracks, err := f.builder.RouteAudio()
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	recTracks, _ := f.fake.Value("Output", "RecTracks")
	assert.EqualValues(t, 7, recTracks)
	_, bound := f.fake.OutputSources()[4]
	assert.False(t, bound)
}

func TestRouteAudioNoDevices(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})

	tracks, err := f.builder.RouteAudio()
	require.NoError(t, err)
	assert.Empty(t, tracks)
	assert.Zero(t, f.fake.Saves("Output"), "RecTracks already 1")
}

func TestMasks(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint32(3), MixerMask(2))
	assert.Equal(t, uint32(5), MixerMask(3))
	assert.Equal(t, uint32(33), MixerMask(6))
	assert.Equal(t, 1, RecTracksMask(1))
	assert.Equal(t, 63, RecTracksMask(6))
}

func TestCameraPlacement(t *testing.T) {
	t.Parallel()
	pos, scale := CameraPlacement(1920, 1080, 640, 480)
	assert.InDelta(t, 1.0, scale, 1e-9)
	assert.InDelta(t, 1920-640-192.0, pos.X, 1e-9)
	assert.InDelta(t, 1080-480-108.0, pos.Y, 1e-9)
}
