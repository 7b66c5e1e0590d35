package virtualcam

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturectl/capturectl/internal/engine/enginetest"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/session"
)

func newController() (*enginetest.Engine, *session.VirtualCam) {
	fake := enginetest.New()
	return fake, session.NewVirtualCam(fake, logger.NewDiscardLogger())
}

func TestStatus(t *testing.T) {
	fake, vc := newController()
	var out bytes.Buffer

	require.NoError(t, Status(context.Background(), vc, &out))
	assert.Contains(t, out.String(), "not installed")

	fake.VirtualCamInstalled = true
	out.Reset()
	require.NoError(t, Status(context.Background(), vc, &out))
	assert.Equal(t, "Virtual camera plugin is installed\n", out.String())
}

func TestInstallUninstall(t *testing.T) {
	fake, vc := newController()
	var out bytes.Buffer

	require.NoError(t, Install(context.Background(), vc, &out))
	assert.True(t, fake.VirtualCamInstalled)
	assert.Equal(t, session.VirtualCamInstalled, vc.State())

	require.NoError(t, Uninstall(context.Background(), vc, &out))
	assert.False(t, fake.VirtualCamInstalled)
	assert.Equal(t, session.VirtualCamNotInstalled, vc.State())
	assert.Contains(t, out.String(), "uninstalled")
}

func TestStart_RunsUntilCancelled(t *testing.T) {
	fake, vc := newController()
	fake.VirtualCamInstalled = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var out bytes.Buffer
	go func() { done <- Start(ctx, vc, &out) }()

	require.Eventually(t, fake.VirtualCamRunning, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.False(t, fake.VirtualCamRunning())
	assert.Equal(t, session.VirtualCamInstalled, vc.State())
}

func TestStart_NotInstalled(t *testing.T) {
	_, vc := newController()

	err := Start(context.Background(), vc, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrInvalidState)
	assert.True(t, errors.IsCategory(err, errors.CategoryVirtualCam))
}
