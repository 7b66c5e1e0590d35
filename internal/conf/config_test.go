package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "debug: true\n")
	settings, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)

	assert.True(t, settings.Debug)
	assert.Equal(t, "Simple", settings.Output.Mode)
	assert.Equal(t, "mkv", settings.Output.Format)
	assert.Equal(t, 10000, settings.Output.VideoBitrate)
	assert.Equal(t, "x264", settings.Output.FallbackEncoder)
	assert.Equal(t, 60, settings.Video.FPS)
	assert.Equal(t, 30*time.Second, settings.Signals.Timeout)
	assert.Equal(t, time.Second, settings.Stats.Interval)
	assert.Equal(t, 6, settings.Audio.MaxTracks)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	assert.Equal(t, path, settings.ConfigFile)
}

func TestLoadFromOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
engine:
  url: ws://10.0.0.5:9000/engine
  platform: darwin
output:
  path: /srv/recordings
  videobitrate: 6000
video:
  display:
    width: 2560
    height: 1440
    scalefactor: 2
signals:
  timeout: 5s
mqtt:
  enabled: true
  broker: tcp://broker:1883
  topic: studio/onair
`)
	settings, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.5:9000/engine", settings.Engine.URL)
	assert.Equal(t, "darwin", settings.Engine.Platform)
	assert.Equal(t, "/srv/recordings", settings.Output.Path)
	assert.Equal(t, 6000, settings.Output.VideoBitrate)
	assert.Equal(t, 2560, settings.Video.Display.Width)
	assert.InDelta(t, 2.0, settings.Video.Display.ScaleFactor, 1e-9)
	assert.Equal(t, 5*time.Second, settings.Signals.Timeout)
	assert.True(t, settings.MQTT.Enabled)
	assert.Equal(t, "studio/onair", settings.MQTT.Topic)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CAPTURECTL_OUTPUT_FORMAT", "mp4")

	path := writeConfig(t, "debug: false\n")
	settings, err := LoadFrom(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "mp4", settings.Output.Format)
}

func TestLoadFromMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFrom(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad engine scheme", "engine:\n  url: http://localhost/engine\n", "engine.url"},
		{"unknown platform", "engine:\n  platform: beos\n", "engine.platform"},
		{"zero fps", "video:\n  fps: 0\n", "video.fps"},
		{"bad listen", "webserver:\n  listen: nope\n", "webserver.listen"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n  broker: \"\"\n", "mqtt.broker"},
		{"mysql without dsn", "database:\n  type: mysql\n", "database.dsn"},
		{"unknown database", "database:\n  type: postgres\n", "database.type"},
		{"tiny signal buffer", "signals:\n  buffer: 1\n", "signals.buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFrom(viper.New(), writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	settings, err := LoadFrom(viper.New(), writeConfig(t, "scene:\n  name: studio\n"))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveYAML(settings, out))

	reloaded, err := LoadFrom(viper.New(), out)
	require.NoError(t, err)
	assert.Equal(t, "studio", reloaded.Scene.Name)
	assert.Equal(t, settings.Signals.Timeout, reloaded.Signals.Timeout)
	assert.Equal(t, settings.Preview.PaddingColor, reloaded.Preview.PaddingColor)
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	s := &Settings{ConfigFile: filepath.Join("/etc", "capturectl", "config.yaml")}
	assert.Equal(t, filepath.Join("/etc", "capturectl", "videos"), s.ResolvePath("videos"))
	assert.Equal(t, "/abs/videos", s.ResolvePath("/abs/videos"))

	assert.Equal(t, "videos", (&Settings{}).ResolvePath("videos"))
}
