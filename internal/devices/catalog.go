// Package devices enumerates capture devices through the engine and realizes
// the camera input used by the scene.
package devices

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/platform"
)

// Kind classifies a capture device.
type Kind int

const (
	DisplayVideo Kind = iota
	CameraVideo
	OutputAudio
	InputAudio
)

func (k Kind) String() string {
	switch k {
	case DisplayVideo:
		return "display"
	case CameraVideo:
		return "camera"
	case OutputAudio:
		return "output_audio"
	case InputAudio:
		return "input_audio"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText renders the kind name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// DefaultDeviceID is the pseudo device that follows the system default.
const DefaultDeviceID = "default"

// Device describes one enumerable device.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// cameraPolls is how many times a fresh camera input is checked for a
// non-zero width before it is given up on.
const cameraPolls = 4

const cameraPollStep = 100 * time.Millisecond

// Catalog lists devices known to the engine.
type Catalog struct {
	factory engine.Factory
	profile platform.Profile
	log     logger.Logger
	cache   *cache.Cache
	ttl     time.Duration
	sleep   func(time.Duration)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCacheTTL sets how long audio device lists are reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Catalog) { c.ttl = ttl }
}

// WithSleep replaces the sleep used between camera polls.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Catalog) { c.sleep = sleep }
}

// NewCatalog creates a Catalog for the given platform profile.
func NewCatalog(factory engine.Factory, profile platform.Profile, log logger.Logger, opts ...Option) *Catalog {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	c := &Catalog{
		factory: factory,
		profile: profile,
		log:     log,
		ttl:     10 * time.Second,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	// At most two keys live here; no janitor goroutine is started.
	c.cache = cache.New(c.ttl, 0)
	return c
}

// Invalidate drops cached device lists.
func (c *Catalog) Invalidate() {
	c.cache.Flush()
}

func (c *Catalog) audioKind(kind Kind) (string, error) {
	switch kind {
	case OutputAudio:
		return c.profile.OutputAudio, nil
	case InputAudio:
		return c.profile.InputAudio, nil
	default:
		return "", errors.Newf("device kind %s is not an audio kind", kind).
			Component("devices").
			Category(errors.CategoryValidation).
			Build()
	}
}

// ListAudioDevices returns the engine's devices of an audio kind in engine
// order. The probe input used to read the list is always released.
func (c *Catalog) ListAudioDevices(kind Kind) ([]Device, error) {
	engineKind, err := c.audioKind(kind)
	if err != nil {
		return nil, err
	}

	if c.ttl > 0 {
		if cached, ok := c.cache.Get(engineKind); ok {
			return cloneDevices(cached.([]Device)), nil
		}
	}

	items, err := c.probeItems(engineKind, kind.String()+"-probe",
		c.profile.AudioSettings(engine.ProbeDeviceID), c.profile.AudioProperty)
	if err != nil {
		return nil, err
	}

	list := make([]Device, 0, len(items))
	for _, item := range items {
		list = append(list, Device{ID: item.Value, Name: item.Name, Kind: kind})
	}

	c.log.Debug("enumerated audio devices",
		logger.String("kind", kind.String()),
		logger.Int("count", len(list)))

	if c.ttl > 0 {
		c.cache.Set(engineKind, cloneDevices(list), c.ttl)
	}
	return list, nil
}

// probeItems creates a throwaway input and returns the items of one of its properties.
func (c *Catalog) probeItems(kind, name string, settings map[string]any, property string) (items []engine.PropertyItem, err error) {
	probe, err := c.factory.CreateInput(kind, name, settings)
	if err != nil {
		return nil, errors.New(err).
			Component("devices").
			Category(errors.CategoryDevice).
			DeviceContext(kind, engine.ProbeDeviceID).
			Context("operation", "create_probe").
			Build()
	}
	defer func() {
		if relErr := probe.Release(); relErr != nil {
			c.log.Warn("failed to release probe input",
				logger.String("kind", kind),
				logger.Error(relErr))
		}
	}()

	props, err := probe.Properties()
	if err != nil {
		return nil, errors.New(err).
			Component("devices").
			Category(errors.CategoryDevice).
			DeviceContext(kind, engine.ProbeDeviceID).
			Context("operation", "read_properties").
			Build()
	}

	prop, ok := engine.FindProperty(props, property)
	if !ok {
		c.log.Warn("probe input has no device property",
			logger.String("kind", kind),
			logger.String("property", property))
		return nil, nil
	}
	return prop.Items, nil
}

// ProbeCamera creates an input for the first camera the engine reports and
// waits briefly for it to produce frames. It returns nil when no camera exists
// or the camera never reports a width.
func (c *Catalog) ProbeCamera() (engine.Input, error) {
	items, err := c.probeItems(c.profile.Camera, "video-probe",
		c.profile.CameraProbeSettings(), c.profile.CameraProperty)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		c.log.Info("no camera found")
		return nil, nil
	}

	deviceID := items[0].Value
	camera, err := c.factory.CreateInput(c.profile.Camera, "video", c.profile.CameraSettings(deviceID))
	if err != nil {
		return nil, errors.New(err).
			Component("devices").
			Category(errors.CategoryDevice).
			DeviceContext(c.profile.Camera, deviceID).
			Context("operation", "create_camera").
			Build()
	}

	start := time.Now()
	for i := 1; i <= cameraPolls; i++ {
		if camera.Width() == 0 {
			c.sleep(cameraPollStep * time.Duration(i))
		}
	}

	if camera.Width() == 0 {
		c.log.Warn("camera did not report a size, skipping it",
			logger.String("device_id", deviceID),
			logger.Duration("waited", time.Since(start)))
		if relErr := camera.Release(); relErr != nil {
			c.log.Warn("failed to release camera input", logger.Error(relErr))
		}
		return nil, nil
	}

	c.log.Info("camera ready",
		logger.String("device_id", deviceID),
		logger.String("name", items[0].Name),
		logger.Int("width", camera.Width()),
		logger.Int("height", camera.Height()))
	return camera, nil
}

func cloneDevices(in []Device) []Device {
	out := make([]Device, len(in))
	copy(out, in)
	return out
}
