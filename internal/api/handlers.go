package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/capturectl/capturectl/internal/devices"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/preview"
	"github.com/capturectl/capturectl/internal/scene"
	"github.com/capturectl/capturectl/internal/session"
	"github.com/capturectl/capturectl/internal/signals"
)

// DefaultRecordingsLimit caps GET /rpc/recordings when no limit is given.
const DefaultRecordingsLimit = 50

// ErrorResponse is the body of every failed RPC.
type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
	Code     int    `json:"code"`
}

// RecordingInitRequest optionally overrides the captured display.
type RecordingInitRequest struct {
	Display *scene.DisplayInfo `json:"display,omitempty"`
}

// RecordingResponse reports whether a recording is running.
type RecordingResponse struct {
	Recording bool `json:"recording"`
}

// PreviewInitRequest attaches the preview to a host window.
type PreviewInitRequest struct {
	WindowHandle string         `json:"windowHandle"`
	Bounds       preview.Bounds `json:"bounds"`
}

// PreviewBoundsRequest moves the preview.
type PreviewBoundsRequest struct {
	Bounds preview.Bounds `json:"bounds"`
}

// StateResponse describes the session.
type StateResponse struct {
	State       session.State `json:"state"`
	RecordingID string        `json:"recordingId,omitempty"`
	Scene       string        `json:"scene,omitempty"`
	Output      string        `json:"output,omitempty"`
	Tracks      int           `json:"tracks"`
	VirtualCam  string        `json:"virtualCam,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, signals.ErrSignalTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders every error returned by a handler as ErrorResponse.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		resp.Error = fmt.Sprint(httpErr.Message)
	}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		resp.Category = ee.GetCategory()
	}

	if code >= http.StatusInternalServerError {
		s.log.Error("RPC failed",
			logger.String("path", c.Request().URL.Path),
			logger.Int("code", code),
			logger.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, resp)
	}
	if err != nil {
		s.log.Warn("failed to write error response", logger.Error(err))
	}
}

func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
}

func (s *Server) handleRecordingInit(c echo.Context) error {
	var req RecordingInitRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	if req.Display != nil {
		if err := req.Display.Validate(); err != nil {
			return err
		}
		s.recorder.SetDisplay(*req.Display)
	}
	if err := s.recorder.Initialize(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, true)
}

func (s *Server) handleRecordingStart(c echo.Context) error {
	if err := s.recorder.Start(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RecordingResponse{Recording: true})
}

func (s *Server) handleRecordingStop(c echo.Context) error {
	if err := s.recorder.Stop(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RecordingResponse{Recording: false})
}

func (s *Server) handleState(c echo.Context) error {
	resp := StateResponse{
		State:       s.recorder.State(),
		RecordingID: s.recorder.RecordingID(),
	}
	if sc := s.recorder.Scene(); sc != nil {
		resp.Scene = sc.Name()
		resp.Output = fmt.Sprintf("%dx%d", sc.OutputWidth, sc.OutputHeight)
		resp.Tracks = len(sc.Tracks)
	}
	if s.virtualCam != nil {
		resp.VirtualCam = s.virtualCam.State().String()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) previewSource() (preview.Source, error) {
	sc := s.recorder.Scene()
	if sc == nil || sc.DisplayAspect <= 0 {
		return preview.Source{}, errors.New(fmt.Errorf("%w: preview requires an initialized session", session.ErrInvalidState)).
			Component("api").
			Category(errors.CategoryState).
			Context("state", s.recorder.State().String()).
			Build()
	}
	return preview.Source{
		Name:   sc.Name(),
		Aspect: sc.DisplayAspect,
	}, nil
}

func (s *Server) handlePreviewInit(c echo.Context) error {
	var req PreviewInitRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	if req.WindowHandle == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "windowHandle is required")
	}
	src, err := s.previewSource()
	if err != nil {
		return err
	}
	res, err := s.preview.Init(req.WindowHandle, src, req.Bounds)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handlePreviewBounds(c echo.Context) error {
	var req PreviewBoundsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	res, err := s.preview.Resize(req.Bounds)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleVirtualCamInstalled(c echo.Context) error {
	ok, err := s.virtualCam.IsInstalled()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok)
}

func (s *Server) handleVirtualCamInstall(c echo.Context) error {
	ok, err := s.virtualCam.Install()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok)
}

func (s *Server) handleVirtualCamUninstall(c echo.Context) error {
	ok, err := s.virtualCam.Uninstall()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok)
}

func (s *Server) handleVirtualCamStart(c echo.Context) error {
	if err := s.virtualCam.Start(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, true)
}

func (s *Server) handleVirtualCamStop(c echo.Context) error {
	if err := s.virtualCam.Stop(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, true)
}

func (s *Server) handleDevices(c echo.Context) error {
	out := make(map[string][]devices.Device, 2)
	for _, kind := range []devices.Kind{devices.OutputAudio, devices.InputAudio} {
		list, err := s.devices.ListAudioDevices(kind)
		if err != nil {
			return err
		}
		out[kind.String()] = list
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleRecordings(c echo.Context) error {
	limit := DefaultRecordingsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	rows, err := s.history.ListRecordings(limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}
