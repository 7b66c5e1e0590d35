package devices

import (
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/capturectl/capturectl/internal/errors"
)

// HostDevice is a capture device as seen by the operating system audio stack,
// independent of the engine.
type HostDevice struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"isDefault"`
}

func hostBackend() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendPulseaudio, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component("devices").
			Category(errors.CategorySystem).
			Context("os", runtime.GOOS).
			Build()
	}
}

// HostAudioDevices lists the host's audio capture devices. It is used to
// diagnose mismatches between what the OS offers and what the engine reports.
func HostAudioDevices() ([]HostDevice, error) {
	backend, err := hostBackend()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("devices").
			Category(errors.CategorySystem).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("devices").
			Category(errors.CategorySystem).
			Context("operation", "enumerate_devices").
			Build()
	}

	list := make([]HostDevice, 0, len(infos))
	for i := range infos {
		// Null backend placeholder
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		list = append(list, HostDevice{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        infos[i].ID.String(),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return list, nil
}
