// Package conf loads, validates and persists capturectl configuration.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/capturectl/capturectl/internal/logger"
)

// EngineSettings configures the connection to the capture engine host.
type EngineSettings struct {
	URL            string        `yaml:"url"`            // websocket endpoint of the engine host
	Channel        string        `yaml:"channel"`        // IPC channel name, generated per process when empty
	WorkingDir     string        `yaml:"workingdir"`     // engine working directory
	DataPath       string        `yaml:"datapath"`       // engine data directory
	Locale         string        `yaml:"locale"`         // engine UI locale
	Version        string        `yaml:"version"`        // version string reported to the engine
	RequestTimeout time.Duration `yaml:"requesttimeout"` // per-call deadline on the transport
	Platform       string        `yaml:"platform"`       // capability profile override: windows, darwin, linux
}

// OutputSettings controls the baseline recording output written to the engine.
type OutputSettings struct {
	Path            string `yaml:"path"`            // directory recordings are written to
	Mode            string `yaml:"mode"`            // engine output mode, Simple or Advanced
	Format          string `yaml:"format"`          // container format
	VideoBitrate    int    `yaml:"videobitrate"`    // kbps
	FallbackEncoder string `yaml:"fallbackencoder"` // used when the engine offers no encoders
}

// DisplaySettings describes the primary display when the host does not report one.
type DisplaySettings struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	ScaleFactor float64 `yaml:"scalefactor"`
}

// VideoSettings controls frame rate and the display fallback.
type VideoSettings struct {
	FPS     int             `yaml:"fps"`
	Display DisplaySettings `yaml:"display"`
}

// SceneSettings controls scene composition.
type SceneSettings struct {
	Name   string `yaml:"name"`
	Camera bool   `yaml:"camera"` // add the camera overlay when a working camera is found
}

// AudioSettings controls per-device track routing.
type AudioSettings struct {
	MaxTracks int `yaml:"maxtracks"` // engine track count, track 1 is the master mix
}

// SignalSettings controls waits on engine output signals.
type SignalSettings struct {
	Timeout time.Duration `yaml:"timeout"`
	Buffer  int           `yaml:"buffer"` // per-waiter queue depth
}

// DeviceSettings controls device enumeration.
type DeviceSettings struct {
	CacheTTL time.Duration `yaml:"cachettl"`
}

// RGB is a padding color.
type RGB struct {
	R int `yaml:"r"`
	G int `yaml:"g"`
	B int `yaml:"b"`
}

// PreviewSettings controls the live preview surface.
type PreviewSettings struct {
	DisplayID    string `yaml:"displayid"`
	PaddingColor RGB    `yaml:"paddingcolor"`
}

// StatsSettings controls performance statistics polling.
type StatsSettings struct {
	Interval time.Duration `yaml:"interval"`
}

// WebServerSettings controls the control-plane HTTP listener.
type WebServerSettings struct {
	Listen string `yaml:"listen"`
}

// MetricsSettings controls the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool `yaml:"enabled"`
}

// MQTTSettings controls on-air state publishing.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientid"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	Retain   bool   `yaml:"retain"`
}

// DatabaseSettings controls recording history persistence.
type DatabaseSettings struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"` // sqlite or mysql
	Path    string `yaml:"path"` // sqlite file
	DSN     string `yaml:"dsn"`  // mysql data source name
}

// SentrySettings controls error telemetry.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Settings is the complete configuration.
type Settings struct {
	Debug     bool                 `yaml:"debug"`
	Engine    EngineSettings       `yaml:"engine"`
	Output    OutputSettings       `yaml:"output"`
	Video     VideoSettings        `yaml:"video"`
	Scene     SceneSettings        `yaml:"scene"`
	Audio     AudioSettings        `yaml:"audio"`
	Signals   SignalSettings       `yaml:"signals"`
	Devices   DeviceSettings       `yaml:"devices"`
	Preview   PreviewSettings      `yaml:"preview"`
	Stats     StatsSettings        `yaml:"stats"`
	WebServer WebServerSettings    `yaml:"webserver"`
	Metrics   MetricsSettings      `yaml:"metrics"`
	MQTT      MQTTSettings         `yaml:"mqtt"`
	Database  DatabaseSettings     `yaml:"database"`
	Sentry    SentrySettings       `yaml:"sentry"`
	Logging   logger.LoggingConfig `yaml:"logging"`

	// ConfigFile is the file the settings were read from, empty when running on defaults.
	ConfigFile string `yaml:"-" mapstructure:"-"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration through the global viper instance, which carries
// bound CLI flags, and stores the result for GetSettings.
func Load(configFile string) (*Settings, error) {
	settings, err := LoadFrom(viper.GetViper(), configFile)
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// LoadFrom reads configuration into a fresh Settings using v. An explicit
// configFile must exist; otherwise the default search paths are tried and a
// default config file is created when none is found.
func LoadFrom(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	settings.ConfigFile = v.ConfigFileUsed()

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix("CAPTURECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the defaults to dir/config.yaml and reads it back.
func createDefaultConfig(v *viper.Viper, dir string) error {
	defaults := &Settings{}
	if err := v.Unmarshal(defaults); err != nil {
		return fmt.Errorf("error building default config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := SaveYAML(defaults, configPath); err != nil {
		return err
	}

	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// SaveYAML writes settings to path atomically through a temp file.
func SaveYAML(settings *Settings, path string) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

// GetSettings returns the settings stored by the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
