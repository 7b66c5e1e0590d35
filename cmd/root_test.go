package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturectl/capturectl/internal/buildinfo"
	"github.com/capturectl/capturectl/internal/conf"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := RootCommand(&conf.Settings{}, &buildinfo.Context{Version: "1.2.3", BuildDate: "2026-01-01"})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "record", "devices", "virtualcam", "history"}, names)
	assert.Equal(t, "1.2.3 (built 2026-01-01)", root.Version)
}

func TestRootCommand_FlagsWriteSettings(t *testing.T) {
	settings := &conf.Settings{}
	root := RootCommand(settings, buildinfo.NewContext("", ""))

	require.NoError(t, root.PersistentFlags().Parse([]string{
		"--debug", "--engine-url", "ws://10.0.0.5:4466/engine", "--platform", "darwin",
	}))
	assert.True(t, settings.Debug)
	assert.Equal(t, "ws://10.0.0.5:4466/engine", settings.Engine.URL)
	assert.Equal(t, "darwin", settings.Engine.Platform)
}

func TestInitialize_DebugRaisesLogLevel(t *testing.T) {
	settings := &conf.Settings{Debug: true}

	central, err := initialize(settings, buildinfo.NewContext("1.0.0", ""))
	require.NoError(t, err)
	t.Cleanup(func() { _ = central.Close() })

	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
}
