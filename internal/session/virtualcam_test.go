package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturectl/capturectl/internal/engine/enginetest"
)

func TestVirtualCamLifecycle(t *testing.T) {
	t.Parallel()
	fake := enginetest.New()
	vc := NewVirtualCam(fake, nil)

	state, err := vc.Refresh()
	require.NoError(t, err)
	assert.Equal(t, VirtualCamNotInstalled, state)

	err = vc.Start()
	require.ErrorIs(t, err, ErrInvalidState)

	installed, err := vc.Install()
	require.NoError(t, err)
	assert.True(t, installed)
	assert.Equal(t, VirtualCamInstalled, vc.State())

	require.NoError(t, vc.Start())
	assert.Equal(t, VirtualCamRunning, vc.State())
	assert.True(t, fake.VirtualCamRunning())

	state, err = vc.Refresh()
	require.NoError(t, err)
	assert.Equal(t, VirtualCamRunning, state)

	require.NoError(t, vc.Stop())
	assert.Equal(t, VirtualCamInstalled, vc.State())
	assert.False(t, fake.VirtualCamRunning())
	require.NoError(t, vc.Stop())
}

func TestVirtualCamUninstallStopsCamera(t *testing.T) {
	t.Parallel()
	fake := enginetest.New()
	fake.VirtualCamInstalled = true
	vc := NewVirtualCam(fake, nil)

	require.NoError(t, vc.Start())
	installed, err := vc.Uninstall()
	require.NoError(t, err)
	assert.False(t, installed)
	assert.Equal(t, VirtualCamNotInstalled, vc.State())
	assert.False(t, fake.VirtualCamRunning())

	calls := fake.Calls()
	assert.Equal(t, []string{"StartVirtualCam", "StopVirtualCam", "UninstallVirtualCamPlugin"}, calls)
}

func TestVirtualCamIsInstalled(t *testing.T) {
	t.Parallel()
	fake := enginetest.New()
	vc := NewVirtualCam(fake, nil)

	installed, err := vc.IsInstalled()
	require.NoError(t, err)
	assert.False(t, installed)

	fake.VirtualCamInstalled = true
	installed, err = vc.IsInstalled()
	require.NoError(t, err)
	assert.True(t, installed)
	assert.Equal(t, VirtualCamInstalled, vc.State())
}

func TestVirtualCamStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "running", VirtualCamRunning.String())
	assert.Equal(t, "virtualcam(7)", VirtualCamState(7).String())
}
