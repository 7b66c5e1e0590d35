package wsengine

import (
	"sync"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/logger"
)

// inputState is the host's view of an input, returned by create and update.
type inputState struct {
	Settings map[string]any `json:"settings"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
}

// input is a proxy for a host-side input.
type input struct {
	c    *Client
	name string
	kind string

	mu    sync.Mutex
	state inputState
}

func (i *input) Name() string { return i.name }
func (i *input) Kind() string { return i.kind }

func (i *input) Settings() map[string]any {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[string]any, len(i.state.Settings))
	for k, v := range i.state.Settings {
		out[k] = v
	}
	return out
}

func (i *input) Update(settings map[string]any) error {
	var res inputState
	if err := i.c.call("input.update", map[string]any{"name": i.name, "settings": settings}, &res); err != nil {
		return err
	}
	i.mu.Lock()
	i.state = res
	i.mu.Unlock()
	return nil
}

func (i *input) Save() error {
	return i.c.call("input.save", map[string]any{"name": i.name}, nil)
}

func (i *input) Properties() ([]engine.Property, error) {
	var props []engine.Property
	err := i.c.call("input.properties", map[string]any{"name": i.name}, &props)
	return props, err
}

// Width asks the host for the current width; sources such as cameras report
// zero until their first frame.
func (i *input) Width() int {
	return i.dimension("width")
}

func (i *input) Height() int {
	return i.dimension("height")
}

func (i *input) dimension(which string) int {
	var res inputState
	if err := i.c.call("input.size", map[string]any{"name": i.name}, &res); err != nil {
		i.c.log.Debug("failed to read input size",
			logger.String("input", i.name),
			logger.Error(err))
		i.mu.Lock()
		defer i.mu.Unlock()
		if which == "width" {
			return i.state.Width
		}
		return i.state.Height
	}
	i.mu.Lock()
	i.state.Width, i.state.Height = res.Width, res.Height
	i.mu.Unlock()
	if which == "width" {
		return res.Width
	}
	return res.Height
}

func (i *input) SetAudioMixers(mask uint32) error {
	return i.c.call("input.setAudioMixers", map[string]any{"name": i.name, "mixers": mask}, nil)
}

func (i *input) Release() error {
	return i.c.call("input.release", map[string]any{"name": i.name}, nil)
}

// scene is a proxy for a host-side scene.
type scene struct {
	c    *Client
	name string
}

func (s *scene) Name() string { return s.name }

func (s *scene) Add(in engine.Input) (engine.SceneItem, error) {
	var res struct {
		ID int `json:"id"`
	}
	if err := s.c.call("scene.add", map[string]any{"scene": s.name, "input": in.Name()}, &res); err != nil {
		return nil, err
	}
	return &sceneItem{c: s.c, scene: s.name, id: res.ID, source: in}, nil
}

// sceneItem is a proxy for an item placed in a host-side scene.
type sceneItem struct {
	c      *Client
	scene  string
	id     int
	source engine.Input
}

func (it *sceneItem) Source() engine.Input { return it.source }

func (it *sceneItem) SetScale(v engine.Vec2) error {
	return it.c.call("sceneItem.setScale", map[string]any{"scene": it.scene, "item": it.id, "x": v.X, "y": v.Y}, nil)
}

func (it *sceneItem) SetPosition(v engine.Vec2) error {
	return it.c.call("sceneItem.setPosition", map[string]any{"scene": it.scene, "item": it.id, "x": v.X, "y": v.Y}, nil)
}
