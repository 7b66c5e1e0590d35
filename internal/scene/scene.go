// Package scene builds the recording scene: a full-screen display capture,
// an optional camera overlay and one audio track per device.
package scene

import (
	"fmt"
	"math"

	"github.com/capturectl/capturectl/internal/devices"
	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/platform"
)

// OutputWidth is the fixed width of the recorded video.
const OutputWidth = 1920

// DisplayInfo describes the captured display in logical pixels.
type DisplayInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	ScaleFactor float64 `json:"scaleFactor"`
}

// PhysicalSize returns the display size in device pixels.
func (d DisplayInfo) PhysicalSize() (width, height int) {
	sf := d.ScaleFactor
	if sf <= 0 {
		sf = 1
	}
	return int(math.Round(float64(d.Width) * sf)), int(math.Round(float64(d.Height) * sf))
}

// AspectRatio returns width over height of the physical display.
func (d DisplayInfo) AspectRatio() float64 {
	w, h := d.PhysicalSize()
	return float64(w) / float64(h)
}

// Validate rejects degenerate displays.
func (d DisplayInfo) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return errors.Newf("invalid display size %dx%d", d.Width, d.Height).
			Component("scene").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// OutputSize returns the recorded resolution for a display aspect ratio.
func OutputSize(aspect float64) (width, height int) {
	return OutputWidth, int(math.Round(OutputWidth / aspect))
}

// Engine is the part of the engine the builder drives.
type Engine interface {
	engine.Factory
	SetOutputSource(channel int, source engine.Source) error
}

// SettingsWriter persists individual settings.
type SettingsWriter interface {
	Set(category, parameter string, value any) (bool, error)
}

// DeviceSource provides the devices placed into the scene.
type DeviceSource interface {
	ListAudioDevices(kind devices.Kind) ([]devices.Device, error)
	ProbeCamera() (engine.Input, error)
}

// Options tune scene composition.
type Options struct {
	Name      string
	Camera    bool
	MaxTracks int
}

// Scene is a built scene and the inputs it holds.
type Scene struct {
	Scene            engine.Scene
	Display          engine.Input
	Camera           engine.Input
	OutputWidth      int
	OutputHeight     int
	VideoScaleFactor float64
	// DisplayAspect is the aspect ratio of the captured display before the
	// output height is rounded.
	DisplayAspect    float64
	Tracks           []Track
}

// Name returns the engine name of the scene.
func (s *Scene) Name() string {
	if s == nil || s.Scene == nil {
		return ""
	}
	return s.Scene.Name()
}

// Builder composes scenes against an engine.
type Builder struct {
	engine   Engine
	settings SettingsWriter
	devices  DeviceSource
	profile  platform.Profile
	opts     Options
	log      logger.Logger
}

// NewBuilder returns a Builder. Zero options fall back to defaults.
func NewBuilder(eng Engine, settings SettingsWriter, devs DeviceSource, profile platform.Profile, opts Options, log logger.Logger) *Builder {
	if opts.Name == "" {
		opts.Name = "capture-scene"
	}
	if opts.MaxTracks <= 0 {
		opts.MaxTracks = DefaultMaxTracks
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Builder{
		engine:   eng,
		settings: settings,
		devices:  devs,
		profile:  profile,
		opts:     opts,
		log:      log,
	}
}

func sceneError(err error, operation string) error {
	return errors.New(err).
		Component("scene").
		Category(errors.CategoryScene).
		Context("operation", operation).
		Build()
}

// Build creates the scene for display, binds it to output channel 1 and
// routes audio devices to the following channels.
func (b *Builder) Build(display DisplayInfo) (*Scene, error) {
	if err := display.Validate(); err != nil {
		return nil, err
	}

	physW, physH := display.PhysicalSize()

	videoSource, err := b.engine.CreateInput(b.profile.DisplayCapture, "desktop-video", nil)
	if err != nil {
		return nil, sceneError(err, "create_display_input")
	}
	settings := videoSource.Settings()
	if settings == nil {
		settings = map[string]any{}
	}
	settings["width"] = physW
	settings["height"] = physH
	if err := videoSource.Update(settings); err != nil {
		return nil, sceneError(err, "update_display_input")
	}
	if err := videoSource.Save(); err != nil {
		return nil, sceneError(err, "save_display_input")
	}

	aspect := display.AspectRatio()
	outW, outH := OutputSize(aspect)
	resolution := fmt.Sprintf("%dx%d", outW, outH)
	if _, err := b.settings.Set("Video", "Base", resolution); err != nil {
		return nil, err
	}
	if _, err := b.settings.Set("Video", "Output", resolution); err != nil {
		return nil, err
	}

	videoScaleFactor := float64(physW) / float64(outW)

	sc, err := b.engine.CreateScene(b.opts.Name)
	if err != nil {
		return nil, sceneError(err, "create_scene")
	}
	displayItem, err := sc.Add(videoSource)
	if err != nil {
		return nil, sceneError(err, "add_display_item")
	}
	inv := 1.0 / videoScaleFactor
	if err := displayItem.SetScale(engine.Vec2{X: inv, Y: inv}); err != nil {
		return nil, sceneError(err, "scale_display_item")
	}

	result := &Scene{
		Scene:            sc,
		Display:          videoSource,
		OutputWidth:      outW,
		OutputHeight:     outH,
		VideoScaleFactor: videoScaleFactor,
		DisplayAspect:    aspect,
	}

	if b.opts.Camera {
		camera, err := b.addCamera(sc, outW, outH)
		if err != nil {
			b.log.Warn("camera overlay skipped", logger.Error(err))
		}
		result.Camera = camera
	}

	if err := b.engine.SetOutputSource(1, sc); err != nil {
		return nil, sceneError(err, "set_output_source")
	}

	tracks, err := b.RouteAudio()
	if err != nil {
		return nil, err
	}
	result.Tracks = tracks

	b.log.Info("scene built",
		logger.String("scene", sc.Name()),
		logger.Int("physical_width", physW),
		logger.Int("physical_height", physH),
		logger.String("output", resolution),
		logger.Float64("video_scale_factor", videoScaleFactor),
		logger.Bool("camera", result.Camera != nil),
		logger.Int("audio_tracks", len(tracks)))

	return result, nil
}

// addCamera places the camera in the bottom-right corner at a third of the
// output width with a 10% margin.
func (b *Builder) addCamera(sc engine.Scene, outW, outH int) (engine.Input, error) {
	camera, err := b.devices.ProbeCamera()
	if err != nil || camera == nil {
		return nil, err
	}

	item, err := sc.Add(camera)
	if err != nil {
		return nil, b.releaseCamera(camera, sceneError(err, "add_camera_item"))
	}

	pos, scale := CameraPlacement(outW, outH, camera.Width(), camera.Height())
	if err := item.SetScale(engine.Vec2{X: scale, Y: scale}); err != nil {
		return nil, b.releaseCamera(camera, sceneError(err, "scale_camera_item"))
	}
	if err := item.SetPosition(pos); err != nil {
		return nil, b.releaseCamera(camera, sceneError(err, "position_camera_item"))
	}
	return camera, nil
}

// releaseCamera frees a camera that did not make it into the scene and
// returns cause.
func (b *Builder) releaseCamera(camera engine.Input, cause error) error {
	if err := camera.Release(); err != nil {
		b.log.Warn("failed to release camera input",
			logger.String("input", camera.Name()),
			logger.Error(err))
	}
	return cause
}

// CameraPlacement returns the overlay position and uniform scale of a
// camera of camW x camH in an output of outW x outH.
func CameraPlacement(outW, outH, camW, camH int) (engine.Vec2, float64) {
	ow, oh := float64(outW), float64(outH)
	cw, ch := float64(camW), float64(camH)
	scale := ow / (3 * cw)
	return engine.Vec2{
		X: ow - cw*scale - ow/10,
		Y: oh - ch*scale - oh/10,
	}, scale
}
