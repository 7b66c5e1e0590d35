// conf/utils.go various util functions for configuration package
package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/capturectl/capturectl/internal/errors"
)

const appDirName = "capturectl"

// GetDefaultConfigPaths returns the configuration search paths for the current OS.
// If a config.yaml exists in one of them, only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			filepath.Join(homeDir, "AppData", "Roaming", appDirName),
			".",
		}
	case "darwin":
		configPaths = []string{
			filepath.Join(homeDir, "Library", "Application Support", appDirName),
			".",
		}
	default:
		configDir := filepath.Join(homeDir, ".config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = xdg
		}
		configPaths = []string{
			filepath.Join(configDir, appDirName),
			".",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// ResolvePath makes a relative path absolute against the config file's directory.
func (s *Settings) ResolvePath(path string) string {
	path = os.ExpandEnv(path)
	if path == "" || filepath.IsAbs(path) || s.ConfigFile == "" {
		return path
	}
	return filepath.Join(filepath.Dir(s.ConfigFile), path)
}
