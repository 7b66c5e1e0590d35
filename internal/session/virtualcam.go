package session

import (
	"fmt"
	"sync"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
)

// VirtualCamState is the state of the virtual camera plugin.
type VirtualCamState int

const (
	VirtualCamNotInstalled VirtualCamState = iota
	VirtualCamInstalled
	VirtualCamRunning
)

func (s VirtualCamState) String() string {
	switch s {
	case VirtualCamNotInstalled:
		return "not_installed"
	case VirtualCamInstalled:
		return "installed"
	case VirtualCamRunning:
		return "running"
	default:
		return fmt.Sprintf("virtualcam(%d)", int(s))
	}
}

// VirtualCam tracks the virtual camera plugin independently of recording.
type VirtualCam struct {
	mu    sync.Mutex
	eng   engine.VirtualCam
	state VirtualCamState
	log   logger.Logger
}

// NewVirtualCam returns a VirtualCam in the NotInstalled state; call Refresh
// to read the real installation status.
func NewVirtualCam(eng engine.VirtualCam, log logger.Logger) *VirtualCam {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &VirtualCam{eng: eng, log: log}
}

func virtualCamError(err error, op string) error {
	return errors.New(err).
		Component("session").
		Category(errors.CategoryVirtualCam).
		Context("operation", op).
		Build()
}

// State returns the last known state.
func (v *VirtualCam) State() VirtualCamState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Refresh re-reads the installation status. A running camera stays Running
// while the plugin is installed.
func (v *VirtualCam) Refresh() (VirtualCamState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.refreshLocked(); err != nil {
		return v.state, err
	}
	return v.state, nil
}

func (v *VirtualCam) refreshLocked() (bool, error) {
	installed, err := v.eng.IsVirtualCamPluginInstalled()
	if err != nil {
		return false, virtualCamError(err, "is_installed")
	}
	switch {
	case !installed:
		v.state = VirtualCamNotInstalled
	case v.state != VirtualCamRunning:
		v.state = VirtualCamInstalled
	}
	return installed, nil
}

// IsInstalled reports whether the plugin is installed.
func (v *VirtualCam) IsInstalled() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refreshLocked()
}

// Install installs the plugin and returns the resulting installation status.
func (v *VirtualCam) Install() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.eng.InstallVirtualCamPlugin(); err != nil {
		return false, virtualCamError(err, "install")
	}
	installed, err := v.refreshLocked()
	if err != nil {
		return false, err
	}
	v.log.Info("virtual camera plugin install finished", logger.Bool("installed", installed))
	return installed, nil
}

// Uninstall stops a running camera, removes the plugin and returns the
// resulting installation status.
func (v *VirtualCam) Uninstall() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state == VirtualCamRunning {
		if err := v.stopLocked(); err != nil {
			return true, err
		}
	}
	if err := v.eng.UninstallVirtualCamPlugin(); err != nil {
		return true, virtualCamError(err, "uninstall")
	}
	installed, err := v.refreshLocked()
	if err != nil {
		return true, err
	}
	v.log.Info("virtual camera plugin uninstall finished", logger.Bool("installed", installed))
	return installed, nil
}

// Start starts the virtual camera. It requires the plugin to be installed.
func (v *VirtualCam) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.state {
	case VirtualCamRunning:
		return nil
	case VirtualCamNotInstalled:
		// The plugin may have been installed outside this process.
		if installed, err := v.refreshLocked(); err != nil {
			return err
		} else if !installed {
			return errors.New(fmt.Errorf("%w: virtual camera plugin is not installed", ErrInvalidState)).
				Component("session").
				Category(errors.CategoryVirtualCam).
				Context("state", v.state.String()).
				Build()
		}
	}

	if err := v.eng.StartVirtualCam(); err != nil {
		return virtualCamError(err, "start")
	}
	v.state = VirtualCamRunning
	v.log.Info("virtual camera started")
	return nil
}

// Stop stops a running virtual camera. Stopping an idle camera does nothing.
func (v *VirtualCam) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != VirtualCamRunning {
		return nil
	}
	return v.stopLocked()
}

func (v *VirtualCam) stopLocked() error {
	if err := v.eng.StopVirtualCam(); err != nil {
		return virtualCamError(err, "stop")
	}
	v.state = VirtualCamInstalled
	v.log.Info("virtual camera stopped")
	return nil
}
