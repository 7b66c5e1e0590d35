package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/capturectl/capturectl/internal/api/middleware"
	"github.com/capturectl/capturectl/internal/datastore"
	"github.com/capturectl/capturectl/internal/devices"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/monitor"
	"github.com/capturectl/capturectl/internal/preview"
	"github.com/capturectl/capturectl/internal/scene"
	"github.com/capturectl/capturectl/internal/session"
)

// Recorder is the session surface driven over RPC.
type Recorder interface {
	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() session.State
	RecordingID() string
	Scene() *scene.Scene
	SetDisplay(d scene.DisplayInfo)
}

// DeviceLister enumerates audio devices.
type DeviceLister interface {
	ListAudioDevices(kind devices.Kind) ([]devices.Device, error)
}

// Previewer owns the live preview surface.
type Previewer interface {
	Init(windowHandle string, src preview.Source, bounds preview.Bounds) (preview.Result, error)
	Resize(bounds preview.Bounds) (preview.Result, error)
}

// VirtualCam controls the virtual camera plugin.
type VirtualCam interface {
	IsInstalled() (bool, error)
	Install() (bool, error)
	Uninstall() (bool, error)
	Start() error
	Stop() error
	State() session.VirtualCamState
}

// History lists past recordings.
type History interface {
	ListRecordings(limit int) ([]datastore.Recording, error)
}

// StatsSource streams performance snapshots until ctx is done.
type StatsSource interface {
	Run(ctx context.Context, sink func(monitor.Snapshot))
}

// Server is the control-plane HTTP server.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	recorder   Recorder
	devices    DeviceLister
	preview    Previewer
	virtualCam VirtualCam
	history    History
	stats      StatsSource
	metrics    http.Handler

	// Lifecycle management
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithDevices enables GET /rpc/devices.
func WithDevices(d DeviceLister) ServerOption {
	return func(s *Server) {
		s.devices = d
	}
}

// WithPreview enables the preview RPCs.
func WithPreview(p Previewer) ServerOption {
	return func(s *Server) {
		s.preview = p
	}
}

// WithVirtualCam enables the virtual camera RPCs.
func WithVirtualCam(v VirtualCam) ServerOption {
	return func(s *Server) {
		s.virtualCam = v
	}
}

// WithHistory enables GET /rpc/recordings.
func WithHistory(h History) ServerOption {
	return func(s *Server) {
		s.history = h
	}
}

// WithStats enables the /ws/stats stream.
func WithStats(src StatsSource) ServerOption {
	return func(s *Server) {
		s.stats = src
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a new HTTP server around recorder.
func New(config *Config, recorder Recorder, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    config,
		recorder:  recorder,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout
	s.echo.HTTPErrorHandler = s.errorHandler

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("listen", config.Listen),
		logger.Bool("debug", config.Debug))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/metrics" || c.Path() == "/health"
	}))
	s.echo.Use(mw.NewCORS(mw.SecurityConfig{AllowedOrigins: s.config.AllowedOrigins}))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders())
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	rpc := s.echo.Group("/rpc")
	rpc.POST("/recording-init", s.handleRecordingInit)
	rpc.POST("/recording-start", s.handleRecordingStart)
	rpc.POST("/recording-stop", s.handleRecordingStop)
	rpc.GET("/state", s.handleState)

	if s.preview != nil {
		rpc.POST("/preview-init", s.handlePreviewInit)
		rpc.POST("/preview-bounds", s.handlePreviewBounds)
	}
	if s.virtualCam != nil {
		rpc.POST("/isVirtualCamPluginInstalled", s.handleVirtualCamInstalled)
		rpc.POST("/installVirtualCamPlugin", s.handleVirtualCamInstall)
		rpc.POST("/uninstallVirtualCamPlugin", s.handleVirtualCamUninstall)
		rpc.POST("/startVirtualCam", s.handleVirtualCamStart)
		rpc.POST("/stopVirtualCam", s.handleVirtualCamStop)
	}
	if s.devices != nil {
		rpc.GET("/devices", s.handleDevices)
	}
	if s.history != nil {
		rpc.GET("/recordings", s.handleRecordings)
	}
	if s.stats != nil {
		s.echo.GET("/ws/stats", s.handleStatsStream)
	}
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"state":          s.recorder.State().String(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Start serves HTTP requests and blocks until ctx is cancelled, then shuts
// the server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("listen", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.New(fmt.Errorf("server error: %w", err)).
				Component("api").
				Category(errors.CategoryHTTP).
				Context("listen", s.config.Listen).
				Build()
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-ctx.Done():
		if err := s.Shutdown(); err != nil {
			return err
		}
		return <-errCh
	}
}

// Shutdown gracefully stops the server and its stream goroutines.
func (s *Server) Shutdown() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.wg.Wait()
	s.log.Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
