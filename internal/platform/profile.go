// Package platform maps the host operating system to the engine input kinds
// and preview strategy available on it. A Profile is resolved once at startup
// and passed to the components that need it.
package platform

import (
	"runtime"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
)

// OS identifies a supported host platform.
type OS string

const (
	Windows OS = "windows"
	Mac     OS = "darwin"
	Linux   OS = "linux"
)

// PreviewMode selects how the preview surface is attached to the host window.
type PreviewMode int

const (
	// PreviewEmbedded draws into the host window and is moved in place.
	PreviewEmbedded PreviewMode = iota
	// PreviewOffscreen renders to an IO surface shown in a child window that is
	// recreated on every resize.
	PreviewOffscreen
)

func (m PreviewMode) String() string {
	if m == PreviewOffscreen {
		return "offscreen"
	}
	return "embedded"
}

// Profile lists the platform specific engine identifiers.
type Profile struct {
	OS             OS
	DisplayCapture string
	Camera         string
	CameraProperty string
	OutputAudio    string
	InputAudio     string
	AudioProperty  string
	Preview        PreviewMode
	// UnitPreviewScale ignores the display scale factor for preview geometry;
	// the compositor already works in points.
	UnitPreviewScale bool
}

var profiles = map[OS]Profile{
	Windows: {
		OS:             Windows,
		DisplayCapture: "monitor_capture",
		Camera:         "dshow_input",
		CameraProperty: "video_device_id",
		OutputAudio:    "wasapi_output_capture",
		InputAudio:     "wasapi_input_capture",
		AudioProperty:  "device_id",
		Preview:        PreviewEmbedded,
	},
	Mac: {
		OS:               Mac,
		DisplayCapture:   "display_capture",
		Camera:           "av_capture_input",
		CameraProperty:   "device",
		OutputAudio:      "coreaudio_output_capture",
		InputAudio:       "coreaudio_input_capture",
		AudioProperty:    "device_id",
		Preview:          PreviewOffscreen,
		UnitPreviewScale: true,
	},
	Linux: {
		OS:             Linux,
		DisplayCapture: "xshm_input",
		Camera:         "v4l2_input",
		CameraProperty: "device_id",
		OutputAudio:    "pulse_output_capture",
		InputAudio:     "pulse_input_capture",
		AudioProperty:  "device_id",
		Preview:        PreviewEmbedded,
	},
}

// For returns the profile of the named OS.
func For(name string) (Profile, error) {
	p, ok := profiles[OS(name)]
	if !ok {
		return Profile{}, errors.Newf("unsupported platform %q", name).
			Component("platform").
			Category(errors.CategoryValidation).
			Context("platform", name).
			Build()
	}
	return p, nil
}

// Detect returns the profile for override when set, otherwise for the running OS.
func Detect(override string) (Profile, error) {
	if override != "" {
		return For(override)
	}
	return For(runtime.GOOS)
}

// CameraProbeSettings binds a camera probe to the sentinel device so the engine
// enumerates devices without opening one.
func (p Profile) CameraProbeSettings() map[string]any {
	settings := map[string]any{p.CameraProperty: engine.ProbeDeviceID}
	if p.OS == Windows {
		settings["audio_device_id"] = engine.ProbeDeviceID
	}
	return settings
}

// CameraSettings binds a camera input to deviceID.
func (p Profile) CameraSettings(deviceID string) map[string]any {
	return map[string]any{p.CameraProperty: deviceID}
}

// AudioSettings binds an audio input to deviceID.
func (p Profile) AudioSettings(deviceID string) map[string]any {
	return map[string]any{p.AudioProperty: deviceID}
}
