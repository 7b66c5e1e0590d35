package wsengine

import (
	"github.com/capturectl/capturectl/internal/engine"
)

// SetWorkingDirectory implements engine.Transport.
func (c *Client) SetWorkingDirectory(dir string) error {
	return c.call("setWorkingDirectory", map[string]any{"dir": dir}, nil)
}

// InitAPI implements engine.Transport.
func (c *Client) InitAPI(locale, dataPath, version string) (int, error) {
	var code int
	err := c.call("initAPI", map[string]any{
		"locale":   locale,
		"dataPath": dataPath,
		"version":  version,
	}, &code)
	return code, err
}

// Settings implements engine.SettingsAPI.
func (c *Client) Settings(category string) ([]engine.SubCategory, error) {
	var out struct {
		Data []engine.SubCategory `json:"data"`
	}
	if err := c.call("getSettings", map[string]any{"category": category}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SaveSettings implements engine.SettingsAPI.
func (c *Client) SaveSettings(category string, data []engine.SubCategory) error {
	return c.call("saveSettings", map[string]any{"category": category, "data": data}, nil)
}

// CreateInput implements engine.Factory.
func (c *Client) CreateInput(kind, name string, settings map[string]any) (engine.Input, error) {
	var res inputState
	if err := c.call("input.create", map[string]any{
		"kind":     kind,
		"name":     name,
		"settings": settings,
	}, &res); err != nil {
		return nil, err
	}
	return &input{c: c, name: name, kind: kind, state: res}, nil
}

// CreateScene implements engine.Factory.
func (c *Client) CreateScene(name string) (engine.Scene, error) {
	if err := c.call("scene.create", map[string]any{"name": name}, nil); err != nil {
		return nil, err
	}
	return &scene{c: c, name: name}, nil
}

// SetOutputSource implements engine.Output.
func (c *Client) SetOutputSource(channel int, source engine.Source) error {
	return c.call("setOutputSource", map[string]any{"channel": channel, "source": source.Name()}, nil)
}

// ConnectOutputSignals implements engine.Output. Only one callback is kept.
func (c *Client) ConnectOutputSignals(callback func(engine.Signal)) error {
	if err := c.call("connectOutputSignals", nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.signals = callback
	c.mu.Unlock()
	return nil
}

// RemoveCallback implements engine.Output.
func (c *Client) RemoveCallback() error {
	c.mu.Lock()
	c.signals = nil
	c.mu.Unlock()
	return c.call("removeCallback", nil, nil)
}

// StartRecording implements engine.Output.
func (c *Client) StartRecording() error { return c.call("startRecording", nil, nil) }

// StopRecording implements engine.Output.
func (c *Client) StopRecording() error { return c.call("stopRecording", nil, nil) }

// PerformanceStatistics implements engine.Output.
func (c *Client) PerformanceStatistics() (engine.PerformanceStats, error) {
	var stats engine.PerformanceStats
	err := c.call("getPerformanceStatistics", nil, &stats)
	return stats, err
}

// IsVirtualCamPluginInstalled implements engine.VirtualCam.
func (c *Client) IsVirtualCamPluginInstalled() (bool, error) {
	var ok bool
	err := c.call("isVirtualCamPluginInstalled", nil, &ok)
	return ok, err
}

// InstallVirtualCamPlugin implements engine.VirtualCam.
func (c *Client) InstallVirtualCamPlugin() error {
	return c.call("installVirtualCamPlugin", nil, nil)
}

// UninstallVirtualCamPlugin implements engine.VirtualCam.
func (c *Client) UninstallVirtualCamPlugin() error {
	return c.call("uninstallVirtualCamPlugin", nil, nil)
}

// StartVirtualCam implements engine.VirtualCam.
func (c *Client) StartVirtualCam() error { return c.call("startVirtualCam", nil, nil) }

// StopVirtualCam implements engine.VirtualCam.
func (c *Client) StopVirtualCam() error { return c.call("stopVirtualCam", nil, nil) }

// CreateSourcePreviewDisplay implements engine.Display.
func (c *Client) CreateSourcePreviewDisplay(windowHandle, sourceName, displayID string) error {
	return c.call("display.createSourcePreview", map[string]any{
		"windowHandle": windowHandle,
		"source":       sourceName,
		"display":      displayID,
	}, nil)
}

// SetShouldDrawUI implements engine.Display.
func (c *Client) SetShouldDrawUI(displayID string, draw bool) error {
	return c.call("display.setShouldDrawUI", map[string]any{"display": displayID, "draw": draw}, nil)
}

// SetPaddingSize implements engine.Display.
func (c *Client) SetPaddingSize(displayID string, size int) error {
	return c.call("display.setPaddingSize", map[string]any{"display": displayID, "size": size}, nil)
}

// SetPaddingColor implements engine.Display.
func (c *Client) SetPaddingColor(displayID string, r, g, b int) error {
	return c.call("display.setPaddingColor", map[string]any{"display": displayID, "r": r, "g": g, "b": b}, nil)
}

// ResizeDisplay implements engine.Display.
func (c *Client) ResizeDisplay(displayID string, width, height int) error {
	return c.call("display.resize", map[string]any{"display": displayID, "width": width, "height": height}, nil)
}

// MoveDisplay implements engine.Display.
func (c *Client) MoveDisplay(displayID string, x, y int) error {
	return c.call("display.move", map[string]any{"display": displayID, "x": x, "y": y}, nil)
}

// DestroyDisplay implements engine.Display.
func (c *Client) DestroyDisplay(displayID string) error {
	return c.call("display.destroy", map[string]any{"display": displayID}, nil)
}

// CreateIOSurface implements engine.Surface.
func (c *Client) CreateIOSurface(displayID string) (string, error) {
	var id string
	err := c.call("surface.create", map[string]any{"display": displayID}, &id)
	return id, err
}

// DestroyIOSurface implements engine.Surface.
func (c *Client) DestroyIOSurface(displayID string) error {
	return c.call("surface.destroy", map[string]any{"display": displayID}, nil)
}

// CreateWindow implements engine.Surface.
func (c *Client) CreateWindow(displayID, parentHandle string) error {
	return c.call("window.create", map[string]any{"display": displayID, "parent": parentHandle}, nil)
}

// ConnectIOSurface implements engine.Surface.
func (c *Client) ConnectIOSurface(displayID, surfaceID string) error {
	return c.call("window.connectSurface", map[string]any{"display": displayID, "surface": surfaceID}, nil)
}

// MoveWindow implements engine.Surface.
func (c *Client) MoveWindow(displayID string, x, y int) error {
	return c.call("window.move", map[string]any{"display": displayID, "x": x, "y": y}, nil)
}

// DestroyWindow implements engine.Surface.
func (c *Client) DestroyWindow(displayID string) error {
	return c.call("window.destroy", map[string]any{"display": displayID}, nil)
}
