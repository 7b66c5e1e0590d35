// Package session drives the recording lifecycle against the capture engine:
// initialization and baseline configuration, scene construction and the
// asynchronous start and stop handshakes.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/capturectl/capturectl/internal/devices"
	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/platform"
	"github.com/capturectl/capturectl/internal/scene"
	"github.com/capturectl/capturectl/internal/settings"
	"github.com/capturectl/capturectl/internal/signals"
)

// DefaultSignalTimeout bounds each wait for an output signal.
const DefaultSignalTimeout = signals.DefaultTimeout

// Config holds everything the session writes to or passes through to the engine.
type Config struct {
	Channel    string
	WorkingDir string
	DataPath   string
	Locale     string
	Version    string

	OutputPath      string
	OutputMode      string
	Format          string
	VideoBitrate    int
	FallbackEncoder string
	FPS             int

	Display       scene.DisplayInfo
	Scene         scene.Options
	SignalTimeout time.Duration
	SignalBuffer  int
	DeviceTTL     time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// WithCatalogOptions passes options to the device catalog.
func WithCatalogOptions(opts ...devices.Option) Option {
	return func(s *Session) { s.catalogOpts = append(s.catalogOpts, opts...) }
}

// Session owns one engine connection and its recording state. All exported
// operations are serialized; State may be read at any time.
type Session struct {
	mu sync.Mutex

	eng      engine.Engine
	profile  platform.Profile
	cfg      Config
	log      logger.Logger
	bus      *signals.Bus
	settings *settings.Store
	catalog  *devices.Catalog
	builder  *scene.Builder

	catalogOpts []devices.Option
	observers   []Observer

	state       atomic.Int32
	scene       *scene.Scene
	recordingID string
	startedAt   time.Time
}

// New creates a Session for eng. The session is Uninitialized until the
// first Initialize or Start.
func New(eng engine.Engine, profile platform.Profile, cfg Config, opts ...Option) *Session {
	s := &Session{
		eng:     eng,
		profile: profile,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewDiscardLogger()
	}
	if s.cfg.SignalTimeout <= 0 {
		s.cfg.SignalTimeout = DefaultSignalTimeout
	}

	s.bus = signals.NewBus(cfg.SignalBuffer, s.log.Module("signals"))
	s.settings = settings.New(eng, s.log.Module("settings"))
	catalogOpts := append([]devices.Option{devices.WithCacheTTL(cfg.DeviceTTL)}, s.catalogOpts...)
	s.catalog = devices.NewCatalog(eng, profile, s.log.Module("devices"), catalogOpts...)
	s.builder = scene.NewBuilder(eng, s.settings, s.catalog, profile, cfg.Scene, s.log.Module("scene"))
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Scene returns the built scene, or nil before initialization.
func (s *Session) Scene() *scene.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene
}

// RecordingID returns the id of the active recording, empty when not recording.
func (s *Session) RecordingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordingID
}

// Devices returns the device catalog used for scene construction.
func (s *Session) Devices() *devices.Catalog {
	return s.catalog
}

// Bus returns the output signal bus.
func (s *Session) Bus() *signals.Bus {
	return s.bus
}

// SetDisplay replaces the display used by the next initialization.
func (s *Session) SetDisplay(d scene.DisplayInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Display = d
}

func (s *Session) transition(to State, err error) {
	from := s.State()
	s.state.Store(int32(to))

	t := Transition{From: from, To: to, RecordingID: s.recordingID, Err: err, At: time.Now()}
	if from != to {
		s.log.Debug("session state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}
	for _, o := range s.observers {
		o.OnTransition(t)
	}
}

// Initialize connects to the engine, applies baseline settings and builds the
// scene. It is a no-op unless the session is Uninitialized or ShutDown.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Session) initializeLocked(ctx context.Context) error {
	if state := s.State(); !state.canInitialize() {
		s.log.Warn("engine already initialized, skipping initialization",
			logger.String("state", state.String()))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	s.transition(Configuring, nil)
	log := s.log.WithContext(ctx)
	log.Debug("initializing engine", logger.String("channel", s.cfg.Channel))

	if err := s.eng.Host(s.cfg.Channel); err != nil {
		return s.failInit(engineError(err, errors.CategoryTransport, "host"))
	}
	if err := s.eng.SetWorkingDirectory(s.cfg.WorkingDir); err != nil {
		return s.failInit(engineError(err, errors.CategoryEngine, "set_working_directory"))
	}

	code, err := s.eng.InitAPI(s.cfg.Locale, s.cfg.DataPath, s.cfg.Version)
	if err != nil {
		return s.failInit(engineError(err, errors.CategoryEngineInit, "init_api"))
	}
	if code != 0 {
		initErr := initError(code)
		log.Error("engine init failure",
			logger.Int("init_code", code),
			logger.String("reason", InitCodeMessage(code)))
		return s.failInit(initErr)
	}

	if err := s.eng.ConnectOutputSignals(s.bus.Publish); err != nil {
		return s.failInit(engineError(err, errors.CategorySignal, "connect_output_signals"))
	}
	log.Debug("engine initialized")

	if err := s.applyBaseline(); err != nil {
		return s.failInit(err)
	}

	sc, err := s.builder.Build(s.cfg.Display)
	if err != nil {
		return s.failInit(err)
	}
	s.scene = sc

	s.transition(Idle, nil)
	log.Info("session initialized",
		logger.String("scene", sc.Name()),
		logger.Int("audio_tracks", len(sc.Tracks)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// failInit runs a best-effort shutdown and returns err.
func (s *Session) failInit(err error) error {
	if _, shutdownErr := s.shutdownLocked(); shutdownErr != nil {
		s.log.Warn("shutdown after failed initialization also failed", logger.Error(shutdownErr))
	}
	return err
}

// applyBaseline writes the fixed output configuration. The output mode is set
// first because it changes which encoders the engine offers.
func (s *Session) applyBaseline() error {
	if _, err := s.settings.Set("Output", "Mode", s.cfg.OutputMode); err != nil {
		return err
	}

	encoder := any(s.cfg.FallbackEncoder)
	if available := s.settings.AvailableValues("Output", "Recording", "RecEncoder"); len(available) > 0 {
		encoder = available[len(available)-1]
	}

	baseline := []struct {
		category, parameter string
		value               any
	}{
		{"Output", "RecEncoder", encoder},
		{"Output", "FilePath", s.cfg.OutputPath},
		{"Output", "RecFormat", s.cfg.Format},
		{"Output", "VBitrate", s.cfg.VideoBitrate},
		{"Video", "FPSCommon", s.cfg.FPS},
	}
	for _, b := range baseline {
		if _, err := s.settings.Set(b.category, b.parameter, b.value); err != nil {
			return err
		}
	}

	s.log.Debug("engine configured",
		logger.Any("encoder", encoder),
		logger.String("path", s.cfg.OutputPath),
		logger.String("format", s.cfg.Format))
	return nil
}

// Start begins recording and waits for the engine to confirm it. An
// uninitialized session is initialized first.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State().canInitialize() {
		if err := s.initializeLocked(ctx); err != nil {
			return err
		}
	}
	if state := s.State(); state != Idle {
		return stateError("start recording", state)
	}

	waiter := s.bus.Subscribe()
	defer waiter.Close()

	log := s.log.WithContext(ctx)
	log.Debug("starting recording")
	if err := s.eng.StartRecording(); err != nil {
		err = engineError(fmt.Errorf("%w: %w", ErrRecordingStart, err), errors.CategoryEngine, "start_recording")
		s.transition(Idle, err)
		return err
	}

	// The handshake is bounded by the signal timeout and is not cancelled by
	// the caller; the engine has already been told to start.
	sig, err := waiter.Next(context.WithoutCancel(ctx), s.cfg.SignalTimeout)
	if err != nil {
		log.Error("no start signal from engine", logger.Error(err))
		s.transition(Idle, err)
		return err
	}

	if sig.Signal == engine.SignalAbnormalStop {
		err := errors.New(fmt.Errorf("%w: %s", ErrRecordingStart, sig.Error)).
			Component("session").
			Category(errors.CategorySignal).
			Context("signal_type", sig.Type).
			Context("signal_code", sig.Code).
			Build()
		log.Error("engine stopped instead of starting",
			logger.String("error", sig.Error),
			logger.Int("code", sig.Code))
		s.transition(Idle, err)
		return err
	}
	if sig.Signal != engine.SignalStart {
		log.Warn("unexpected signal while starting",
			logger.String("signal", sig.Signal),
			logger.String("type", sig.Type))
	}

	s.recordingID = uuid.NewString()
	s.startedAt = time.Now()
	s.transition(Recording, nil)
	log.Info("recording started", logger.String("recording_id", s.recordingID))
	return nil
}

// Stop ends the recording and waits for the stopping and stop signals in
// that order. The session always returns to Idle.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.State(); state != Recording {
		return stateError("stop recording", state)
	}

	s.transition(Stopping, nil)

	waiter := s.bus.Subscribe()
	defer waiter.Close()

	log := s.log.WithContext(ctx).With(logger.String("recording_id", s.recordingID))
	log.Debug("stopping recording")

	err := s.eng.StopRecording()
	if err != nil {
		err = engineError(err, errors.CategoryEngine, "stop_recording")
	} else {
		err = s.awaitSequence(context.WithoutCancel(ctx), waiter, engine.SignalStopping, engine.SignalStop)
	}

	if err != nil {
		log.Error("recording did not stop cleanly", logger.Error(err))
	} else {
		log.Info("recording stopped", logger.Duration("duration", time.Since(s.startedAt)))
	}

	s.transition(Idle, err)
	s.recordingID = ""
	return err
}

// awaitSequence consumes one signal per expected name, failing on the first
// timeout or mismatch.
func (s *Session) awaitSequence(ctx context.Context, w *signals.Waiter, expected ...string) error {
	for i, want := range expected {
		sig, err := w.Next(ctx, s.cfg.SignalTimeout)
		if err != nil {
			return fmt.Errorf("waiting for %q signal: %w", want, err)
		}
		if sig.Signal != want {
			return errors.New(fmt.Errorf("%w: got %q, want %q", ErrSignalMismatch, sig.Signal, want)).
				Component("session").
				Category(errors.CategorySignal).
				Context("position", i).
				Context("signal_type", sig.Type).
				Context("signal_error", sig.Error).
				Build()
		}
	}
	return nil
}

// Shutdown detaches from the engine. It reports false when there was nothing
// to shut down. A disconnect failure is returned but the session is still
// considered shut down.
func (s *Session) Shutdown() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownLocked()
}

func (s *Session) shutdownLocked() (bool, error) {
	if state := s.State(); state == Uninitialized || state == ShutDown {
		s.log.Debug("engine already shut down")
		return false, nil
	}

	s.log.Debug("shutting down engine")
	if err := s.eng.RemoveCallback(); err != nil {
		s.log.Warn("failed to remove output signal callback", logger.Error(err))
	}

	var result error
	if err := s.eng.Disconnect(); err != nil {
		result = errors.New(fmt.Errorf("%w: %w", ErrShutdown, err)).
			Component("session").
			Category(errors.CategoryShutdown).
			Context("operation", "disconnect").
			Build()
	}

	s.scene = nil
	s.catalog.Invalidate()
	s.transition(ShutDown, result)
	s.recordingID = ""

	if result != nil {
		s.log.Error("engine shutdown failed", logger.Error(result))
	} else {
		s.log.Info("engine shut down")
	}
	return true, result
}

// Close shuts the session down and releases its signal waiters.
func (s *Session) Close() error {
	_, err := s.Shutdown()
	s.bus.Close()
	return err
}
