// Package engine defines the contract between capturectl and the external
// capture engine. The engine owns capture, compositing and encoding; this
// package only names the primitives the orchestrator drives.
package engine

import "github.com/capturectl/capturectl/internal/errors"

// Sentinel device id used when creating a probe input purely to read its
// device list.
const ProbeDeviceID = "does_not_exist"

// ErrNotConnected is returned by transports when no engine host is attached.
var ErrNotConnected = errors.NewStd("engine: not connected")

// Parameter is one entry in a settings subcategory.
type Parameter struct {
	Name         string           `json:"name"`
	Type         string           `json:"type,omitempty"`
	CurrentValue any              `json:"currentValue"`
	Values       []map[string]any `json:"values,omitempty"` // option list, one single-key object per option
}

// SubCategory groups parameters inside a settings category.
type SubCategory struct {
	Name       string      `json:"nameSubCategory"`
	Parameters []Parameter `json:"parameters"`
}

// PropertyItem is one selectable entry of an input property, typically a device.
type PropertyItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Property is a named input property exposing a list of choices.
type Property struct {
	Name  string         `json:"name"`
	Items []PropertyItem `json:"items"`
}

// Vec2 is a 2D vector for scene item transforms.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Signal is one output signal reported by the engine.
type Signal struct {
	Type   string `json:"type"`
	Signal string `json:"signal"`
	Code   int    `json:"code"`
	Error  string `json:"error,omitempty"`
}

// Signal names emitted during a recording lifecycle.
const (
	SignalStart    = "start"
	SignalStopping = "stopping"
	SignalStop     = "stop"
	// SignalAbnormalStop is emitted instead of SignalStart when the output fails to start.
	SignalAbnormalStop = "Stop"
)

// PerformanceStats is the engine's performance snapshot.
type PerformanceStats struct {
	CPU                     float64 `json:"CPU"`
	NumberDroppedFrames     int     `json:"numberDroppedFrames"`
	PercentageDroppedFrames float64 `json:"percentageDroppedFrames"`
	Bandwidth               float64 `json:"bandwidth"`
	FrameRate               float64 `json:"frameRate"`
}

// Source is anything that can be bound to an output channel.
type Source interface {
	Name() string
}

// Input is a capture source created by the engine.
type Input interface {
	Source
	Kind() string
	Settings() map[string]any
	Update(settings map[string]any) error
	Save() error
	Properties() ([]Property, error)
	Width() int
	Height() int
	SetAudioMixers(mask uint32) error
	Release() error
}

// SceneItem is an input placed in a scene.
type SceneItem interface {
	Source() Input
	SetScale(Vec2) error
	SetPosition(Vec2) error
}

// Scene is a composition of items. Items are never reordered.
type Scene interface {
	Source
	Add(input Input) (SceneItem, error)
}

// Transport manages the link to the engine host.
type Transport interface {
	Host(channel string) error
	Disconnect() error
	SetWorkingDirectory(dir string) error
	// InitAPI returns the engine's numeric init result, 0 on success.
	InitAPI(locale, dataPath, version string) (int, error)
}

// SettingsAPI reads and writes whole settings categories.
type SettingsAPI interface {
	Settings(category string) ([]SubCategory, error)
	SaveSettings(category string, data []SubCategory) error
}

// Factory creates inputs and scenes.
type Factory interface {
	CreateInput(kind, name string, settings map[string]any) (Input, error)
	CreateScene(name string) (Scene, error)
}

// Output drives recording and the output signal stream. The engine supports a
// single signal callback per process.
type Output interface {
	SetOutputSource(channel int, source Source) error
	ConnectOutputSignals(callback func(Signal)) error
	RemoveCallback() error
	StartRecording() error
	StopRecording() error
	PerformanceStatistics() (PerformanceStats, error)
}

// VirtualCam controls the virtual camera plugin.
type VirtualCam interface {
	IsVirtualCamPluginInstalled() (bool, error)
	InstallVirtualCamPlugin() error
	UninstallVirtualCamPlugin() error
	StartVirtualCam() error
	StopVirtualCam() error
}

// Display manages preview surfaces bound to a native window handle.
type Display interface {
	CreateSourcePreviewDisplay(windowHandle, sourceName, displayID string) error
	SetShouldDrawUI(displayID string, draw bool) error
	SetPaddingSize(displayID string, size int) error
	SetPaddingColor(displayID string, r, g, b int) error
	ResizeDisplay(displayID string, width, height int) error
	MoveDisplay(displayID string, x, y int) error
	DestroyDisplay(displayID string) error
}

// Surface manages off-screen rendering surfaces hosted in a child window,
// used where the compositor cannot embed the preview directly.
type Surface interface {
	CreateIOSurface(displayID string) (surfaceID string, err error)
	DestroyIOSurface(displayID string) error
	CreateWindow(displayID, parentHandle string) error
	ConnectIOSurface(displayID, surfaceID string) error
	MoveWindow(displayID string, x, y int) error
	DestroyWindow(displayID string) error
}

// Engine is the full collaborator surface.
type Engine interface {
	Transport
	SettingsAPI
	Factory
	Output
	VirtualCam
	Display
	Surface
}

// FindProperty returns the named property from props.
func FindProperty(props []Property, name string) (Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}
