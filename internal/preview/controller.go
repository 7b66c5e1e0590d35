package preview

import (
	"fmt"
	"sync"

	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/platform"
)

// DefaultDisplayID names the preview display when none is configured.
const DefaultDisplayID = "preview"

// Color is an RGB padding color.
type Color struct {
	R, G, B int
}

// Options configure a Controller.
type Options struct {
	DisplayID    string
	ScaleFactor  float64 // host display scale, ignored on platforms that work in points
	PaddingColor Color
}

// Source identifies what the preview shows.
type Source struct {
	Name   string  // engine source name, usually the scene
	Aspect float64 // width over height
}

// Result is reported back to the host after every geometry change.
type Result struct {
	Height int `json:"height"`
}

// Controller owns at most one preview display.
type Controller struct {
	mu      sync.Mutex
	eng     Engine
	backend Backend
	opts    Options
	log     logger.Logger

	attached bool
	window   string
	source   Source
}

// NewController returns a Controller for the given platform profile.
func NewController(eng Engine, profile platform.Profile, opts Options, log logger.Logger) *Controller {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	if opts.DisplayID == "" {
		opts.DisplayID = DefaultDisplayID
	}
	if opts.ScaleFactor <= 0 || profile.UnitPreviewScale {
		opts.ScaleFactor = 1
	}
	return &Controller{
		eng:     eng,
		backend: NewBackend(profile.Preview, eng, log),
		opts:    opts,
		log:     log,
	}
}

// Init attaches a preview of src to windowHandle and lays it out in bounds.
// An existing preview is released first.
func (c *Controller) Init(windowHandle string, src Source, bounds Bounds) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if src.Aspect <= 0 {
		return Result{}, errors.Newf("invalid preview aspect ratio %v", src.Aspect).
			Component("preview").
			Category(errors.CategoryValidation).
			Build()
	}

	if c.attached {
		c.releaseLocked()
	}

	id := c.opts.DisplayID
	if err := c.eng.CreateSourcePreviewDisplay(windowHandle, src.Name, id); err != nil {
		return Result{}, previewError(err, "create_display", id)
	}
	c.attached = true
	c.window = windowHandle
	c.source = src

	setup := []struct {
		op string
		fn func() error
	}{
		{"set_draw_ui", func() error { return c.eng.SetShouldDrawUI(id, false) }},
		{"set_padding_size", func() error { return c.eng.SetPaddingSize(id, 0) }},
		{"set_padding_color", func() error {
			pc := c.opts.PaddingColor
			return c.eng.SetPaddingColor(id, pc.R, pc.G, pc.B)
		}},
	}
	for _, step := range setup {
		if err := step.fn(); err != nil {
			return Result{}, previewError(err, step.op, id)
		}
	}

	c.log.Debug("preview attached",
		logger.String("display_id", id),
		logger.String("source", src.Name))

	return c.resizeLocked(bounds)
}

// Resize lays out the attached preview in bounds.
func (c *Controller) Resize(bounds Bounds) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return Result{}, errors.New(fmt.Errorf("preview %q is not attached", c.opts.DisplayID)).
			Component("preview").
			Category(errors.CategoryState).
			Build()
	}
	return c.resizeLocked(bounds)
}

func (c *Controller) resizeLocked(bounds Bounds) (Result, error) {
	g := Compute(bounds, c.source.Aspect)
	sf := c.opts.ScaleFactor
	id := c.opts.DisplayID

	if err := c.eng.ResizeDisplay(id, Scaled(g.Width, sf), Scaled(g.Height, sf)); err != nil {
		return Result{}, previewError(err, "resize_display", id)
	}
	if err := c.backend.Place(id, c.window, g, sf); err != nil {
		return Result{}, err
	}

	c.log.Trace("preview resized",
		logger.Int("x", g.X),
		logger.Int("y", g.Y),
		logger.Int("width", g.Width),
		logger.Int("height", g.Height))
	return Result{Height: g.Height}, nil
}

// Release destroys the preview display. It is safe to call when nothing is attached.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		c.releaseLocked()
	}
}

func (c *Controller) releaseLocked() {
	id := c.opts.DisplayID
	if err := c.backend.Release(id); err != nil {
		c.log.Warn("failed to release preview backend", logger.Error(err))
	}
	if err := c.eng.DestroyDisplay(id); err != nil {
		c.log.Warn("failed to destroy preview display", logger.Error(err))
	}
	c.attached = false
	c.window = ""
}
