// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/capturectl/capturectl/internal/engine"
)

// Size configures the realized dimensions of inputs of one kind. Width reads
// return 0 for the first ReadyAfter calls, and forever when ReadyAfter < 0.
type Size struct {
	Width      int
	Height     int
	ReadyAfter int
}

// Engine is a scriptable fake. Exported fields configure behaviour and must be
// set before use; recorded state is read through accessor methods.
type Engine struct {
	// InitResult is returned by InitAPI.
	InitResult int
	// HostErr, DisconnectErr and InitErr are returned by the matching calls.
	HostErr       error
	DisconnectErr error
	InitErr       error
	// Categories seeds the settings tree.
	Categories map[string][]engine.SubCategory
	// DeviceLists maps an input kind to the property its probe exposes.
	DeviceLists map[string]engine.Property
	// Sizes maps an input kind to its realized dimensions.
	Sizes map[string]Size
	// OnStartRecording and OnStopRecording run inside the engine call, typically
	// to Emit signals.
	OnStartRecording func(e *Engine)
	OnStopRecording  func(e *Engine)
	// Stats is returned by PerformanceStatistics.
	Stats engine.PerformanceStats
	// VirtualCamInstalled is the initial plugin state.
	VirtualCamInstalled bool
	// AddErrs maps an input kind to the error Scene.Add returns for it.
	AddErrs map[string]error
	// ScaleErrs maps an input kind to the error SceneItem.SetScale returns.
	ScaleErrs map[string]error
	// CreateWindowErr is returned by CreateWindow.
	CreateWindowErr error

	mu             sync.Mutex
	calls          []string
	channel        string
	callback       func(engine.Signal)
	saves          map[string]int
	inputs         []*Input
	scenes         []*Scene
	outputs        map[int]string
	virtualRunning bool
	displays       map[string]*DisplayState
	surfaces       map[string]*SurfaceState
	surfaceSeq     int
}

// DisplayState is the recorded state of one preview display.
type DisplayState struct {
	WindowHandle string
	Source       string
	DrawUI       bool
	Padding      int
	Color        [3]int
	Width        int
	Height       int
	X            int
	Y            int
}

// SurfaceState is the recorded state of one off-screen surface.
type SurfaceState struct {
	SurfaceID string
	Parent    string
	Connected bool
	X         int
	Y         int
}

var _ engine.Engine = (*Engine)(nil)

// New returns a fake with no settings, devices or sizes configured.
func New() *Engine {
	return &Engine{
		Categories:  map[string][]engine.SubCategory{},
		DeviceLists: map[string]engine.Property{},
		Sizes:       map[string]Size{},
	}
}

func (e *Engine) record(call string) {
	e.calls = append(e.calls, call)
}

// Calls returns the ordered list of engine calls.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// Emit delivers a signal through the registered callback, if any.
func (e *Engine) Emit(sig engine.Signal) {
	e.mu.Lock()
	cb := e.callback
	e.mu.Unlock()
	if cb != nil {
		cb(sig)
	}
}

// EmitSignal is shorthand for Emit with an output-type signal.
func (e *Engine) EmitSignal(name string) {
	e.Emit(engine.Signal{Type: "recording", Signal: name})
}

// HasCallback reports whether an output signal callback is registered.
func (e *Engine) HasCallback() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callback != nil
}

// Channel returns the channel passed to Host.
func (e *Engine) Channel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channel
}

// Saves returns how often a category was written back.
func (e *Engine) Saves(category string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saves[category]
}

// Value returns the current value of the first parameter with the given name.
func (e *Engine) Value(category, parameter string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sub := range e.Categories[category] {
		for _, p := range sub.Parameters {
			if p.Name == parameter {
				return p.CurrentValue, true
			}
		}
	}
	return nil, false
}

// Inputs returns all inputs created so far, released or not.
func (e *Engine) Inputs() []*Input {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.inputs)
}

// Scenes returns all scenes created so far.
func (e *Engine) Scenes() []*Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.scenes)
}

// OutputSources returns channel to source name bindings.
func (e *Engine) OutputSources() map[int]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.outputs)
}

// Display returns the recorded state of a preview display.
func (e *Engine) Display(id string) (DisplayState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.displays[id]
	if !ok {
		return DisplayState{}, false
	}
	return *d, true
}

// Surface returns the recorded state of an off-screen surface.
func (e *Engine) Surface(id string) (SurfaceState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.surfaces[id]
	if !ok {
		return SurfaceState{}, false
	}
	return *s, true
}

// VirtualCamRunning reports whether the virtual camera was started.
func (e *Engine) VirtualCamRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.virtualRunning
}

func (e *Engine) Host(channel string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("Host")
	if e.HostErr != nil {
		return e.HostErr
	}
	e.channel = channel
	return nil
}

func (e *Engine) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("Disconnect")
	return e.DisconnectErr
}

func (e *Engine) SetWorkingDirectory(string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("SetWorkingDirectory")
	return nil
}

func (e *Engine) InitAPI(string, string, string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("InitAPI")
	return e.InitResult, e.InitErr
}

// Settings returns a deep copy so callers cannot mutate the fake's tree in place.
func (e *Engine) Settings(category string) ([]engine.SubCategory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("Settings:" + category)
	data, ok := e.Categories[category]
	if !ok {
		return nil, nil
	}
	return deepCopy(data)
}

func (e *Engine) SaveSettings(category string, data []engine.SubCategory) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("SaveSettings:" + category)
	copied, err := deepCopy(data)
	if err != nil {
		return err
	}
	e.Categories[category] = copied
	if e.saves == nil {
		e.saves = map[string]int{}
	}
	e.saves[category]++
	return nil
}

func deepCopy(data []engine.SubCategory) ([]engine.SubCategory, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out []engine.SubCategory
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) CreateInput(kind, name string, settings map[string]any) (engine.Input, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("CreateInput:" + kind)
	size := e.Sizes[kind]
	in := &Input{
		engine:   e,
		kind:     kind,
		name:     name,
		settings: maps.Clone(settings),
		size:     size,
	}
	if prop, ok := e.DeviceLists[kind]; ok {
		in.props = []engine.Property{prop}
	}
	e.inputs = append(e.inputs, in)
	return in, nil
}

func (e *Engine) CreateScene(name string) (engine.Scene, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("CreateScene")
	s := &Scene{engine: e, name: name}
	e.scenes = append(e.scenes, s)
	return s, nil
}

func (e *Engine) SetOutputSource(channel int, source engine.Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record(fmt.Sprintf("SetOutputSource:%d", channel))
	if e.outputs == nil {
		e.outputs = map[int]string{}
	}
	e.outputs[channel] = source.Name()
	return nil
}

func (e *Engine) ConnectOutputSignals(callback func(engine.Signal)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ConnectOutputSignals")
	e.callback = callback
	return nil
}

func (e *Engine) RemoveCallback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("RemoveCallback")
	e.callback = nil
	return nil
}

func (e *Engine) StartRecording() error {
	e.mu.Lock()
	e.record("StartRecording")
	hook := e.OnStartRecording
	e.mu.Unlock()
	if hook != nil {
		hook(e)
	}
	return nil
}

func (e *Engine) StopRecording() error {
	e.mu.Lock()
	e.record("StopRecording")
	hook := e.OnStopRecording
	e.mu.Unlock()
	if hook != nil {
		hook(e)
	}
	return nil
}

func (e *Engine) PerformanceStatistics() (engine.PerformanceStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Stats, nil
}

func (e *Engine) IsVirtualCamPluginInstalled() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.VirtualCamInstalled, nil
}

func (e *Engine) InstallVirtualCamPlugin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("InstallVirtualCamPlugin")
	e.VirtualCamInstalled = true
	return nil
}

func (e *Engine) UninstallVirtualCamPlugin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("UninstallVirtualCamPlugin")
	e.VirtualCamInstalled = false
	return nil
}

func (e *Engine) StartVirtualCam() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("StartVirtualCam")
	if !e.VirtualCamInstalled {
		return fmt.Errorf("virtual camera plugin not installed")
	}
	e.virtualRunning = true
	return nil
}

func (e *Engine) StopVirtualCam() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("StopVirtualCam")
	e.virtualRunning = false
	return nil
}

func (e *Engine) display(id string) (*DisplayState, error) {
	d, ok := e.displays[id]
	if !ok {
		return nil, fmt.Errorf("display %q does not exist", id)
	}
	return d, nil
}

func (e *Engine) CreateSourcePreviewDisplay(windowHandle, sourceName, displayID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("CreateSourcePreviewDisplay")
	if e.displays == nil {
		e.displays = map[string]*DisplayState{}
	}
	e.displays[displayID] = &DisplayState{WindowHandle: windowHandle, Source: sourceName, DrawUI: true}
	return nil
}

func (e *Engine) SetShouldDrawUI(displayID string, draw bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := e.display(displayID)
	if err != nil {
		return err
	}
	d.DrawUI = draw
	return nil
}

func (e *Engine) SetPaddingSize(displayID string, size int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := e.display(displayID)
	if err != nil {
		return err
	}
	d.Padding = size
	return nil
}

func (e *Engine) SetPaddingColor(displayID string, r, g, b int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := e.display(displayID)
	if err != nil {
		return err
	}
	d.Color = [3]int{r, g, b}
	return nil
}

func (e *Engine) ResizeDisplay(displayID string, width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ResizeDisplay")
	d, err := e.display(displayID)
	if err != nil {
		return err
	}
	d.Width, d.Height = width, height
	return nil
}

func (e *Engine) MoveDisplay(displayID string, x, y int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("MoveDisplay")
	d, err := e.display(displayID)
	if err != nil {
		return err
	}
	d.X, d.Y = x, y
	return nil
}

func (e *Engine) DestroyDisplay(displayID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("DestroyDisplay")
	delete(e.displays, displayID)
	return nil
}

func (e *Engine) CreateIOSurface(displayID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("CreateIOSurface")
	e.surfaceSeq++
	if e.surfaces == nil {
		e.surfaces = map[string]*SurfaceState{}
	}
	id := fmt.Sprintf("surface-%d", e.surfaceSeq)
	e.surfaces[displayID] = &SurfaceState{SurfaceID: id}
	return id, nil
}

func (e *Engine) DestroyIOSurface(displayID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("DestroyIOSurface")
	delete(e.surfaces, displayID)
	return nil
}

func (e *Engine) CreateWindow(displayID, parentHandle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("CreateWindow")
	if e.CreateWindowErr != nil {
		return e.CreateWindowErr
	}
	s, ok := e.surfaces[displayID]
	if !ok {
		return fmt.Errorf("no surface for display %q", displayID)
	}
	s.Parent = parentHandle
	return nil
}

func (e *Engine) ConnectIOSurface(displayID, surfaceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("ConnectIOSurface")
	s, ok := e.surfaces[displayID]
	if !ok || s.SurfaceID != surfaceID {
		return fmt.Errorf("surface %q not found for display %q", surfaceID, displayID)
	}
	s.Connected = true
	return nil
}

func (e *Engine) MoveWindow(displayID string, x, y int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("MoveWindow")
	s, ok := e.surfaces[displayID]
	if !ok {
		return fmt.Errorf("no surface for display %q", displayID)
	}
	s.X, s.Y = x, y
	return nil
}

func (e *Engine) DestroyWindow(displayID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("DestroyWindow")
	return nil
}

// Input is a fake engine input.
type Input struct {
	engine     *Engine
	kind       string
	name       string
	settings   map[string]any
	props      []engine.Property
	size       Size
	widthReads int
	mixers     uint32
	saved      int
	released   bool
}

func (i *Input) Name() string { return i.name }
func (i *Input) Kind() string { return i.kind }

func (i *Input) Settings() map[string]any {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	return maps.Clone(i.settings)
}

func (i *Input) Update(settings map[string]any) error {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	if i.settings == nil {
		i.settings = map[string]any{}
	}
	maps.Copy(i.settings, settings)
	return nil
}

func (i *Input) Save() error {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	i.saved++
	return nil
}

func (i *Input) Properties() ([]engine.Property, error) {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	return slices.Clone(i.props), nil
}

func (i *Input) Width() int {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	i.widthReads++
	if i.size.ReadyAfter < 0 || i.widthReads <= i.size.ReadyAfter {
		return 0
	}
	return i.size.Width
}

func (i *Input) Height() int {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	return i.size.Height
}

func (i *Input) SetAudioMixers(mask uint32) error {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	i.mixers = mask
	return nil
}

func (i *Input) Release() error {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	i.released = true
	return nil
}

// Mixers returns the last audio mixer mask.
func (i *Input) Mixers() uint32 {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	return i.mixers
}

// Released reports whether Release was called.
func (i *Input) Released() bool {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	return i.released
}

// SaveCount returns how often Save was called.
func (i *Input) SaveCount() int {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	return i.saved
}

// Scene is a fake scene.
type Scene struct {
	engine *Engine
	mu     sync.Mutex
	name   string
	items  []*SceneItem
}

func (s *Scene) Name() string { return s.name }

func (s *Scene) Add(input engine.Input) (engine.SceneItem, error) {
	s.engine.mu.Lock()
	addErr := s.engine.AddErrs[input.Kind()]
	scaleErr := s.engine.ScaleErrs[input.Kind()]
	s.engine.mu.Unlock()
	if addErr != nil {
		return nil, addErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	item := &SceneItem{input: input, Scale: engine.Vec2{X: 1, Y: 1}, scaleErr: scaleErr}
	s.items = append(s.items, item)
	return item, nil
}

// Items returns the scene items in insertion order.
func (s *Scene) Items() []*SceneItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// SceneItem is a fake scene item exposing its transform.
type SceneItem struct {
	input    engine.Input
	scaleErr error
	Scale    engine.Vec2
	Position engine.Vec2
}

func (it *SceneItem) Source() engine.Input { return it.input }

func (it *SceneItem) SetScale(v engine.Vec2) error {
	if it.scaleErr != nil {
		return it.scaleErr
	}
	it.Scale = v
	return nil
}

func (it *SceneItem) SetPosition(v engine.Vec2) error {
	it.Position = v
	return nil
}

// OutputCategory returns a minimal Output settings category resembling the
// engine's Simple output mode, with the given encoders on offer.
func OutputCategory(encoders ...string) []engine.SubCategory {
	values := make([]map[string]any, 0, len(encoders))
	for _, enc := range encoders {
		values = append(values, map[string]any{enc: enc})
	}
	return []engine.SubCategory{
		{Name: "Untitled", Parameters: []engine.Parameter{
			{Name: "Mode", CurrentValue: "Advanced", Values: []map[string]any{{"Simple": "Simple"}, {"Advanced": "Advanced"}}},
		}},
		{Name: "Recording", Parameters: []engine.Parameter{
			{Name: "FilePath", CurrentValue: ""},
			{Name: "RecFormat", CurrentValue: "flv"},
			{Name: "RecEncoder", CurrentValue: "", Values: values},
			{Name: "VBitrate", CurrentValue: 2500},
			{Name: "RecTracks", CurrentValue: 1},
			{Name: "Track1Name", CurrentValue: ""},
			{Name: "Track2Name", CurrentValue: ""},
			{Name: "Track3Name", CurrentValue: ""},
			{Name: "Track4Name", CurrentValue: ""},
			{Name: "Track5Name", CurrentValue: ""},
			{Name: "Track6Name", CurrentValue: ""},
		}},
	}
}

// VideoCategory returns a minimal Video settings category.
func VideoCategory() []engine.SubCategory {
	return []engine.SubCategory{
		{Name: "Untitled", Parameters: []engine.Parameter{
			{Name: "Base", CurrentValue: "1280x720"},
			{Name: "Output", CurrentValue: "1280x720"},
			{Name: "FPSCommon", CurrentValue: "30"},
		}},
	}
}
