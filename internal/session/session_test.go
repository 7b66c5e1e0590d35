package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/engine/enginetest"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/platform"
	"github.com/capturectl/capturectl/internal/scene"
	"github.com/capturectl/capturectl/internal/signals"
)

type transitionLog struct {
	mu          sync.Mutex
	transitions []Transition
}

func (l *transitionLog) OnTransition(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, t)
}

func (l *transitionLog) pairs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.transitions))
	for _, t := range l.transitions {
		out = append(out, fmt.Sprintf("%s->%s", t.From, t.To))
	}
	return out
}

func (l *transitionLog) last() Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitions[len(l.transitions)-1]
}

func testConfig() Config {
	return Config{
		Channel:         "capturectl-test",
		WorkingDir:      "/opt/engine",
		DataPath:        "/var/lib/capturectl",
		Locale:          "en-US",
		Version:         "1.0.0",
		OutputPath:      "/videos",
		OutputMode:      "Simple",
		Format:          "mkv",
		VideoBitrate:    10000,
		FallbackEncoder: "x264",
		FPS:             60,
		Display:         scene.DisplayInfo{Width: 2560, Height: 1440, ScaleFactor: 1},
		Scene:           scene.Options{Name: "capture-scene"},
		SignalTimeout:   50 * time.Millisecond,
	}
}

func newFake(encoders ...string) *enginetest.Engine {
	fake := enginetest.New()
	fake.Categories["Output"] = enginetest.OutputCategory(encoders...)
	fake.Categories["Video"] = enginetest.VideoCategory()
	fake.OnStartRecording = func(e *enginetest.Engine) { e.EmitSignal(engine.SignalStart) }
	fake.OnStopRecording = func(e *enginetest.Engine) {
		e.EmitSignal(engine.SignalStopping)
		e.EmitSignal(engine.SignalStop)
	}
	return fake
}

func newSession(t *testing.T, fake *enginetest.Engine) (*Session, *transitionLog) {
	t.Helper()
	profile, err := platform.For("windows")
	require.NoError(t, err)
	obs := &transitionLog{}
	s := New(fake, profile, testConfig(), WithObserver(obs))
	t.Cleanup(func() { _ = s.Close() })
	return s, obs
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

func TestInitializeTwiceIsNoop(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	s, obs := newSession(t, fake)

	require.NoError(t, s.Initialize(t.Context()))
	require.NoError(t, s.Initialize(t.Context()))

	assert.Equal(t, Idle, s.State())
	assert.Equal(t, 1, countCalls(fake.Calls(), "Host"))
	assert.Equal(t, 1, countCalls(fake.Calls(), "InitAPI"))
	assert.Equal(t, []string{"uninitialized->configuring", "configuring->idle"}, obs.pairs())
	assert.Equal(t, "capturectl-test", fake.Channel())
	assert.True(t, fake.HasCallback())
	require.NotNil(t, s.Scene())
	assert.Equal(t, "capture-scene", s.Scene().Name())
}

func TestInitializeOrder(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	s, _ := newSession(t, fake)

	require.NoError(t, s.Initialize(t.Context()))

	calls := fake.Calls()
	require.GreaterOrEqual(t, len(calls), 5)
	assert.Equal(t, []string{"Host", "SetWorkingDirectory", "InitAPI", "ConnectOutputSignals"}, calls[:4])
	assert.Less(t, slices.Index(calls, "SaveSettings:Output"), slices.Index(calls, "CreateInput:monitor_capture"))
}

func TestInitializeBaselineSettings(t *testing.T) {
	t.Parallel()
	fake := newFake("obs_x264", "jim_nvenc")
	s, _ := newSession(t, fake)

	require.NoError(t, s.Initialize(t.Context()))

	expect := map[string]any{
		"Mode":       "Simple",
		"RecEncoder": "jim_nvenc",
		"FilePath":   "/videos",
		"RecFormat":  "mkv",
		"VBitrate":   10000,
	}
	for param, want := range expect {
		got, ok := fake.Value("Output", param)
		require.True(t, ok, param)
		assert.EqualValues(t, want, got, param)
	}
	fps, _ := fake.Value("Video", "FPSCommon")
	assert.EqualValues(t, 60, fps)
	base, _ := fake.Value("Video", "Base")
	assert.Equal(t, "1920x1080", base)
}

func TestInitializeFallbackEncoder(t *testing.T) {
	t.Parallel()
	fake := newFake()
	s, _ := newSession(t, fake)

	require.NoError(t, s.Initialize(t.Context()))

	enc, _ := fake.Value("Output", "RecEncoder")
	assert.Equal(t, "x264", enc)
}

func TestInitializeFailureCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code    int
		message string
	}{
		{-2, "DirectX could not be found"},
		{-5, "video drivers may be out of date"},
		{-7, "unknown error #-7"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			t.Parallel()
			fake := newFake("x264")
			fake.InitResult = tt.code
			s, _ := newSession(t, fake)

			err := s.Initialize(t.Context())
			require.ErrorIs(t, err, ErrInitialization)
			assert.Contains(t, err.Error(), tt.message)
			assert.True(t, errors.IsCategory(err, errors.CategoryEngineInit))

			assert.Equal(t, ShutDown, s.State())
			calls := fake.Calls()
			assert.Contains(t, calls, "RemoveCallback")
			assert.Contains(t, calls, "Disconnect")
			assert.NotContains(t, calls, "ConnectOutputSignals")
		})
	}
}

func TestInitializeRetryAfterFailure(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	fake.InitResult = -5
	s, _ := newSession(t, fake)

	require.Error(t, s.Initialize(t.Context()))
	fake.InitResult = 0
	require.NoError(t, s.Initialize(t.Context()))
	assert.Equal(t, Idle, s.State())
}

func TestStartFromUninitialized(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	s, obs := newSession(t, fake)

	require.NoError(t, s.Start(t.Context()))

	assert.Equal(t, Recording, s.State())
	assert.Equal(t, []string{
		"uninitialized->configuring",
		"configuring->idle",
		"idle->recording",
	}, obs.pairs())
	assert.NotEmpty(t, s.RecordingID())
	assert.Equal(t, s.RecordingID(), obs.last().RecordingID)
}

func TestStartAbnormalStop(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	fake.OnStartRecording = func(e *enginetest.Engine) {
		e.Emit(engine.Signal{Type: "recording", Signal: engine.SignalAbnormalStop, Code: -4, Error: "encoder unavailable"})
	}
	s, obs := newSession(t, fake)

	err := s.Start(t.Context())
	require.ErrorIs(t, err, ErrRecordingStart)
	assert.Contains(t, err.Error(), "encoder unavailable")
	assert.Equal(t, Idle, s.State())
	assert.Empty(t, s.RecordingID())

	last := obs.last()
	assert.Equal(t, Idle, last.From)
	assert.Equal(t, Idle, last.To)
	require.ErrorIs(t, last.Err, ErrRecordingStart)
}

func TestStartTimeout(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	fake.OnStartRecording = nil
	s, _ := newSession(t, fake)

	begin := time.Now()
	err := s.Start(t.Context())
	require.ErrorIs(t, err, signals.ErrSignalTimeout)
	assert.GreaterOrEqual(t, time.Since(begin), 50*time.Millisecond)
	assert.Equal(t, Idle, s.State())
}

func TestStartUnexpectedSignalStillRecords(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	fake.OnStartRecording = func(e *enginetest.Engine) { e.EmitSignal("activate") }
	s, _ := newSession(t, fake)

	require.NoError(t, s.Start(t.Context()))
	assert.Equal(t, Recording, s.State())
}

func TestStartWhileRecording(t *testing.T) {
	t.Parallel()
	s, _ := newSession(t, newFake("x264"))

	require.NoError(t, s.Start(t.Context()))
	err := s.Start(t.Context())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, Recording, s.State())
}

func TestStartIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	s, _ := newSession(t, fake)
	require.NoError(t, s.Initialize(t.Context()))

	ctx, cancel := context.WithCancel(t.Context())
	fake.OnStartRecording = func(e *enginetest.Engine) {
		cancel()
		e.EmitSignal(engine.SignalStart)
	}

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, Recording, s.State())
}

func TestStopInOrder(t *testing.T) {
	t.Parallel()
	s, obs := newSession(t, newFake("x264"))

	require.NoError(t, s.Start(t.Context()))
	id := s.RecordingID()
	require.NoError(t, s.Stop(t.Context()))

	assert.Equal(t, Idle, s.State())
	assert.Empty(t, s.RecordingID())
	pairs := obs.pairs()
	assert.Equal(t, []string{"recording->stopping", "stopping->idle"}, pairs[len(pairs)-2:])
	last := obs.last()
	assert.Equal(t, id, last.RecordingID)
	assert.NoError(t, last.Err)
}

func TestStopReversedSignals(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	fake.OnStopRecording = func(e *enginetest.Engine) {
		e.EmitSignal(engine.SignalStop)
		e.EmitSignal(engine.SignalStopping)
	}
	s, obs := newSession(t, fake)

	require.NoError(t, s.Start(t.Context()))
	err := s.Stop(t.Context())
	require.ErrorIs(t, err, ErrSignalMismatch)
	assert.Equal(t, Idle, s.State())
	require.ErrorIs(t, obs.last().Err, ErrSignalMismatch)
}

func TestStopTimeout(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	fake.OnStopRecording = func(e *enginetest.Engine) { e.EmitSignal(engine.SignalStopping) }
	s, _ := newSession(t, fake)

	require.NoError(t, s.Start(t.Context()))
	err := s.Stop(t.Context())
	require.ErrorIs(t, err, signals.ErrSignalTimeout)
	assert.Contains(t, err.Error(), `"stop"`)
	assert.Equal(t, Idle, s.State())
}

func TestStopRequiresRecording(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	s, _ := newSession(t, fake)

	err := s.Stop(t.Context())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.NotContains(t, fake.Calls(), "StopRecording")
}

func TestRecordAgainAfterStop(t *testing.T) {
	t.Parallel()
	s, _ := newSession(t, newFake("x264"))

	for range 2 {
		require.NoError(t, s.Start(t.Context()))
		require.NoError(t, s.Stop(t.Context()))
	}
	assert.Equal(t, Idle, s.State())
}

func TestShutdown(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	s, _ := newSession(t, fake)

	done, err := s.Shutdown()
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.Initialize(t.Context()))
	done, err = s.Shutdown()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, ShutDown, s.State())
	assert.False(t, fake.HasCallback())
	assert.Nil(t, s.Scene())

	done, err = s.Shutdown()
	require.NoError(t, err)
	assert.False(t, done)
}

func TestShutdownDisconnectFailure(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	s, obs := newSession(t, fake)
	require.NoError(t, s.Initialize(t.Context()))

	fake.DisconnectErr = errors.NewStd("pipe broken")
	done, err := s.Shutdown()
	assert.True(t, done)
	require.ErrorIs(t, err, ErrShutdown)
	assert.Contains(t, err.Error(), "pipe broken")
	assert.Equal(t, ShutDown, s.State())
	assert.Equal(t, ShutDown, obs.last().To)
}

func TestReinitializeAfterShutdown(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	s, _ := newSession(t, fake)

	require.NoError(t, s.Initialize(t.Context()))
	_, err := s.Shutdown()
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context()))
	assert.Equal(t, Recording, s.State())
	assert.Equal(t, 2, countCalls(fake.Calls(), "Host"))
}

func TestHostFailure(t *testing.T) {
	t.Parallel()
	fake := newFake("x264")
	fake.HostErr = errors.NewStd("no engine host")
	s, _ := newSession(t, fake)

	err := s.Initialize(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTransport))
	assert.Equal(t, ShutDown, s.State())
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "state(42)", State(42).String())
	text, err := Recording.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "recording", string(text))
}

func TestInitCodeMessage(t *testing.T) {
	t.Parallel()
	assert.Contains(t, InitCodeMessage(-2), "DirectX")
	assert.Contains(t, InitCodeMessage(-5), "drivers")
	assert.Contains(t, InitCodeMessage(3), "#3")
}
