// Package app assembles the engine client, the recording session and the
// optional history, metrics and MQTT components from settings.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/capturectl/capturectl/internal/api"
	"github.com/capturectl/capturectl/internal/buildinfo"
	"github.com/capturectl/capturectl/internal/conf"
	"github.com/capturectl/capturectl/internal/datastore"
	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/engine/wsengine"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/monitor"
	"github.com/capturectl/capturectl/internal/mqtt"
	"github.com/capturectl/capturectl/internal/observability"
	"github.com/capturectl/capturectl/internal/observability/metrics"
	"github.com/capturectl/capturectl/internal/platform"
	"github.com/capturectl/capturectl/internal/preview"
	"github.com/capturectl/capturectl/internal/scene"
	"github.com/capturectl/capturectl/internal/session"
)

// App owns every long-lived component of one process.
type App struct {
	Settings   *conf.Settings
	Build      *buildinfo.Context
	Profile    platform.Profile
	Engine     engine.Engine
	Session    *session.Session
	VirtualCam *session.VirtualCam
	Preview    *preview.Controller
	Poller     *monitor.Poller

	// Optional, nil when disabled in settings
	Metrics   *observability.Metrics
	Store     datastore.Interface
	Publisher *mqtt.StatePublisher

	mqttClient mqtt.Client
	module     func(name string) logger.Logger
	log        logger.Logger
}

// Option configures New.
type Option func(*options)

type options struct {
	engine engine.Engine
	module func(name string) logger.Logger
}

// WithEngine replaces the websocket engine client.
func WithEngine(eng engine.Engine) Option {
	return func(o *options) { o.engine = eng }
}

// WithLogger sets the logger components derive their module loggers from.
// By default module loggers come from the global central logger.
func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.module = log.Module }
}

// SessionConfig maps settings onto the session configuration. An empty
// engine channel is replaced by the per-process channel of bi.
func SessionConfig(settings *conf.Settings, bi *buildinfo.Context) session.Config {
	channel := settings.Engine.Channel
	if channel == "" {
		channel = bi.Channel()
	}
	return session.Config{
		Channel:         channel,
		WorkingDir:      settings.Engine.WorkingDir,
		DataPath:        settings.ResolvePath(settings.Engine.DataPath),
		Locale:          settings.Engine.Locale,
		Version:         settings.Engine.Version,
		OutputPath:      settings.ResolvePath(settings.Output.Path),
		OutputMode:      settings.Output.Mode,
		Format:          settings.Output.Format,
		VideoBitrate:    settings.Output.VideoBitrate,
		FallbackEncoder: settings.Output.FallbackEncoder,
		FPS:             settings.Video.FPS,
		Display: scene.DisplayInfo{
			Width:       settings.Video.Display.Width,
			Height:      settings.Video.Display.Height,
			ScaleFactor: settings.Video.Display.ScaleFactor,
		},
		Scene: scene.Options{
			Name:      settings.Scene.Name,
			Camera:    settings.Scene.Camera,
			MaxTracks: settings.Audio.MaxTracks,
		},
		SignalTimeout: settings.Signals.Timeout,
		SignalBuffer:  settings.Signals.Buffer,
		DeviceTTL:     settings.Devices.CacheTTL,
	}
}

// New builds the components enabled in settings. Nothing touches the engine
// until the session is initialized.
func New(settings *conf.Settings, bi *buildinfo.Context, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.module == nil {
		o.module = logger.Global().Module
	}
	module := o.module
	if bi == nil {
		bi = buildinfo.NewContext("", "")
	}

	profile, err := platform.Detect(settings.Engine.Platform)
	if err != nil {
		return nil, err
	}

	a := &App{
		Settings: settings,
		Build:    bi,
		Profile:  profile,
		Engine:   o.engine,
		module:   module,
		log:      module("app"),
	}
	if a.Engine == nil {
		a.Engine = wsengine.New(wsengine.Config{
			URL:            settings.Engine.URL,
			RequestTimeout: settings.Engine.RequestTimeout,
		}, module("engine"))
	}

	var observers []session.Option

	if settings.Metrics.Enabled {
		if a.Metrics, err = observability.NewMetrics(); err != nil {
			return nil, fmt.Errorf("error initializing metrics: %w", err)
		}
		observers = append(observers, session.WithObserver(a.Metrics))
	}

	if settings.Database.Enabled {
		if err := a.openStore(module); err != nil {
			return nil, err
		}
		observers = append(observers, session.WithObserver(
			datastore.NewHistory(a.Store, settings.ResolvePath(settings.Output.Path),
				settings.Output.Format, module("history"))))
	}

	if settings.MQTT.Enabled {
		cfg := mqttConfig(settings)
		var m *metrics.MQTTMetrics
		if a.Metrics != nil {
			m = a.Metrics.MQTT
		}
		a.mqttClient = mqtt.NewClient(cfg, m, module("mqtt"))
		a.Publisher = mqtt.NewStatePublisher(a.mqttClient, cfg, module("mqtt"))
		observers = append(observers, session.WithObserver(a.Publisher))
	}

	sessionOpts := append([]session.Option{session.WithLogger(module("session"))}, observers...)
	a.Session = session.New(a.Engine, profile, SessionConfig(settings, bi), sessionOpts...)
	a.VirtualCam = session.NewVirtualCam(a.Engine, module("virtualcam"))
	a.Preview = preview.NewController(a.Engine, profile, preview.Options{
		DisplayID:   settings.Preview.DisplayID,
		ScaleFactor: settings.Video.Display.ScaleFactor,
		PaddingColor: preview.Color{
			R: settings.Preview.PaddingColor.R,
			G: settings.Preview.PaddingColor.G,
			B: settings.Preview.PaddingColor.B,
		},
	}, module("preview"))
	a.Poller = monitor.NewPoller(&liveStats{session: a.Session, engine: a.Engine}, settings.Stats.Interval,
		monitor.WithLogger(module("monitor")),
		monitor.WithDiskPath(settings.ResolvePath(settings.Output.Path)))

	return a, nil
}

func (a *App) openStore(module func(string) logger.Logger) error {
	db := a.Settings.Database
	store, err := datastore.New(datastore.Config{
		Type: db.Type,
		Path: a.Settings.ResolvePath(db.Path),
		DSN:  db.DSN,
	}, module("datastore"))
	if err != nil {
		return err
	}
	if err := store.Open(); err != nil {
		return err
	}
	a.Store = store
	return nil
}

func mqttConfig(settings *conf.Settings) mqtt.Config {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	if settings.MQTT.ClientID != "" {
		cfg.ClientID = settings.MQTT.ClientID
	}
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	if settings.MQTT.Topic != "" {
		cfg.Topic = settings.MQTT.Topic
	}
	cfg.Retain = settings.MQTT.Retain
	return cfg
}

// ConnectMQTT connects the state publisher's client. A failed connection is
// logged and the process continues without publishing.
func (a *App) ConnectMQTT(ctx context.Context) {
	if a.mqttClient == nil {
		return
	}
	if err := a.mqttClient.Connect(ctx); err != nil {
		a.log.Warn("MQTT connection failed, on-air state will not be published",
			logger.String("broker", a.Settings.MQTT.Broker),
			logger.Error(err))
	}
}

// RunPublisher drains the MQTT state queue until ctx is done.
func (a *App) RunPublisher(ctx context.Context) error {
	if a.Publisher == nil {
		return nil
	}
	return a.Publisher.Run(ctx)
}

// Serve runs the control-plane server and the background workers until ctx
// is done or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	opts := []api.ServerOption{
		api.WithLogger(a.module("api")),
		api.WithDevices(a.Session.Devices()),
		api.WithPreview(a.Preview),
		api.WithVirtualCam(a.VirtualCam),
		api.WithStats(a.Poller),
	}
	if a.Store != nil {
		opts = append(opts, api.WithHistory(a.Store))
	}
	if a.Metrics != nil {
		opts = append(opts, api.WithMetrics(a.Metrics.Handler()))
	}

	server, err := api.New(api.ConfigFromSettings(a.Settings), a.Session, opts...)
	if err != nil {
		return err
	}

	a.ConnectMQTT(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		return a.RunPublisher(gctx)
	})
	if a.Metrics != nil {
		g.Go(func() error {
			a.Poller.Run(gctx, func(snap monitor.Snapshot) {
				a.Metrics.ObserveSnapshot(snap)
				a.Metrics.ObserveSignals(a.Session.Bus().Stats())
			})
			return nil
		})
	}

	return g.Wait()
}

// Close shuts the session down and releases every optional component. It
// is safe to call after a partial New.
func (a *App) Close() error {
	var errs []error

	if a.Preview != nil {
		a.Preview.Release()
	}
	if a.Session != nil {
		if err := a.Session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.log.Warn("failed to close database", logger.Error(err))
			errs = append(errs, err)
		} else {
			a.log.Debug("database closed")
		}
	}

	return errors.Join(errs...)
}

// liveStats reports zero statistics while no engine is connected, so the
// poller keeps running across session restarts without logging failures.
type liveStats struct {
	session *session.Session
	engine  engine.Output
}

func (l *liveStats) PerformanceStatistics() (engine.PerformanceStats, error) {
	switch l.session.State() {
	case session.Uninitialized, session.ShutDown:
		return engine.PerformanceStats{}, nil
	default:
		return l.engine.PerformanceStatistics()
	}
}
