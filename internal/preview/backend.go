package preview

import (
	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/platform"
)

// Engine is the part of the engine used for previews.
type Engine interface {
	engine.Display
	engine.Surface
}

// Backend positions an attached preview display.
type Backend interface {
	// Place moves the preview of displayID to g, scaled by sf.
	Place(displayID, windowHandle string, g Geometry, sf float64) error
	// Release frees per-display native resources.
	Release(displayID string) error
}

// NewBackend returns the backend for a preview mode.
func NewBackend(mode platform.PreviewMode, eng Engine, log logger.Logger) Backend {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	if mode == platform.PreviewOffscreen {
		return &offscreenBackend{eng: eng, log: log}
	}
	return &embeddedBackend{eng: eng}
}

func previewError(err error, op, displayID string) error {
	return errors.New(err).
		Component("preview").
		Category(errors.CategoryPreview).
		Context("operation", op).
		Context("display_id", displayID).
		Build()
}

// embeddedBackend moves a display drawn directly into the host window.
type embeddedBackend struct {
	eng engine.Display
}

func (b *embeddedBackend) Place(displayID, _ string, g Geometry, sf float64) error {
	if err := b.eng.MoveDisplay(displayID, Scaled(g.X, sf), Scaled(g.Y, sf)); err != nil {
		return previewError(err, "move_display", displayID)
	}
	return nil
}

func (b *embeddedBackend) Release(string) error { return nil }

// offscreenBackend renders into an IO surface shown in a child window. The
// window is recreated on every placement, and y is mirrored around the first
// y seen because the compositor origin is bottom-left.
type offscreenBackend struct {
	eng engine.Surface
	log logger.Logger

	initialY  int
	hasInitY  bool
	hasWindow bool
}

func (b *offscreenBackend) Place(displayID, windowHandle string, g Geometry, sf float64) error {
	if !b.hasInitY {
		b.initialY = g.Y
		b.hasInitY = true
	}

	if b.hasWindow {
		b.destroy(displayID)
	}

	surfaceID, err := b.eng.CreateIOSurface(displayID)
	if err != nil {
		return previewError(err, "create_io_surface", displayID)
	}
	if err := b.eng.CreateWindow(displayID, windowHandle); err != nil {
		if dErr := b.eng.DestroyIOSurface(displayID); dErr != nil {
			b.log.Warn("failed to destroy preview surface", logger.Error(dErr))
		}
		return previewError(err, "create_window", displayID)
	}
	b.hasWindow = true
	if err := b.eng.ConnectIOSurface(displayID, surfaceID); err != nil {
		return previewError(err, "connect_io_surface", displayID)
	}

	y := 2*b.initialY - g.Y
	if err := b.eng.MoveWindow(displayID, Scaled(g.X, sf), Scaled(y, sf)); err != nil {
		return previewError(err, "move_window", displayID)
	}
	return nil
}

func (b *offscreenBackend) destroy(displayID string) {
	if err := b.eng.DestroyWindow(displayID); err != nil {
		b.log.Warn("failed to destroy preview window", logger.Error(err))
	}
	if err := b.eng.DestroyIOSurface(displayID); err != nil {
		b.log.Warn("failed to destroy preview surface", logger.Error(err))
	}
	b.hasWindow = false
}

func (b *offscreenBackend) Release(displayID string) error {
	if b.hasWindow {
		b.destroy(displayID)
	}
	b.hasInitY = false
	return nil
}
