// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) error{
		validateEngineSettings,
		validateOutputSettings,
		validateVideoSettings,
		validateTimingSettings,
		validateWebServerSettings,
		validateMQTTSettings,
		validateDatabaseSettings,
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateEngineSettings(s *Settings) error {
	u, err := url.Parse(s.Engine.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("engine.url must be a ws:// or wss:// URL, got %q", s.Engine.URL)
	}
	switch s.Engine.Platform {
	case "", "windows", "darwin", "linux":
	default:
		return fmt.Errorf("engine.platform must be windows, darwin or linux, got %q", s.Engine.Platform)
	}
	if s.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.requesttimeout must be positive")
	}
	return nil
}

func validateOutputSettings(s *Settings) error {
	if strings.TrimSpace(s.Output.Path) == "" {
		return fmt.Errorf("output.path must be set")
	}
	if s.Output.VideoBitrate <= 0 {
		return fmt.Errorf("output.videobitrate must be positive, got %d", s.Output.VideoBitrate)
	}
	if s.Output.FallbackEncoder == "" {
		return fmt.Errorf("output.fallbackencoder must be set")
	}
	return nil
}

func validateVideoSettings(s *Settings) error {
	if s.Video.FPS <= 0 {
		return fmt.Errorf("video.fps must be positive, got %d", s.Video.FPS)
	}
	d := s.Video.Display
	if d.Width <= 0 || d.Height <= 0 || d.ScaleFactor <= 0 {
		return fmt.Errorf("video.display needs positive width, height and scalefactor")
	}
	if s.Audio.MaxTracks < 1 {
		return fmt.Errorf("audio.maxtracks must be at least 1, got %d", s.Audio.MaxTracks)
	}
	return nil
}

func validateTimingSettings(s *Settings) error {
	if s.Signals.Timeout <= 0 {
		return fmt.Errorf("signals.timeout must be positive")
	}
	if s.Signals.Buffer < 2 {
		return fmt.Errorf("signals.buffer must hold at least 2 events, got %d", s.Signals.Buffer)
	}
	if s.Stats.Interval <= 0 {
		return fmt.Errorf("stats.interval must be positive")
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	if _, _, err := net.SplitHostPort(s.WebServer.Listen); err != nil {
		return fmt.Errorf("webserver.listen %q: %w", s.WebServer.Listen, err)
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	if s.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must be set when mqtt is enabled")
	}
	if s.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic must be set when mqtt is enabled")
	}
	return nil
}

func validateDatabaseSettings(s *Settings) error {
	if !s.Database.Enabled {
		return nil
	}
	switch s.Database.Type {
	case "sqlite":
		if s.Database.Path == "" {
			return fmt.Errorf("database.path must be set for sqlite")
		}
	case "mysql":
		if s.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for mysql")
		}
	default:
		return fmt.Errorf("database.type must be sqlite or mysql, got %q", s.Database.Type)
	}
	return nil
}
