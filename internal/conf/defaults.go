// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("engine.url", "ws://127.0.0.1:4466/engine")
	v.SetDefault("engine.channel", "")
	v.SetDefault("engine.workingdir", ".")
	v.SetDefault("engine.datapath", "engine-data")
	v.SetDefault("engine.locale", "en-US")
	v.SetDefault("engine.version", "1.0.0")
	v.SetDefault("engine.requesttimeout", 10*time.Second)
	v.SetDefault("engine.platform", "")

	v.SetDefault("output.path", "videos")
	v.SetDefault("output.mode", "Simple")
	v.SetDefault("output.format", "mkv")
	v.SetDefault("output.videobitrate", 10000)
	v.SetDefault("output.fallbackencoder", "x264")

	v.SetDefault("video.fps", 60)
	v.SetDefault("video.display.width", 1920)
	v.SetDefault("video.display.height", 1080)
	v.SetDefault("video.display.scalefactor", 1.0)

	v.SetDefault("scene.name", "capture-scene")
	v.SetDefault("scene.camera", true)

	v.SetDefault("audio.maxtracks", 6)

	v.SetDefault("signals.timeout", 30*time.Second)
	v.SetDefault("signals.buffer", 8)

	v.SetDefault("devices.cachettl", 10*time.Second)

	v.SetDefault("preview.displayid", "preview")
	v.SetDefault("preview.paddingcolor.r", 255)
	v.SetDefault("preview.paddingcolor.g", 255)
	v.SetDefault("preview.paddingcolor.b", 255)

	v.SetDefault("stats.interval", time.Second)

	v.SetDefault("webserver.listen", "127.0.0.1:8765")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "capturectl/state")
	v.SetDefault("mqtt.retain", true)

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "capturectl.db")
	v.SetDefault("database.dsn", "")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("logging.defaultlevel", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.fileoutput.enabled", false)
	v.SetDefault("logging.fileoutput.path", "logs/capturectl.log")
	v.SetDefault("logging.fileoutput.maxsize", 50)
	v.SetDefault("logging.fileoutput.maxage", 30)
	v.SetDefault("logging.fileoutput.maxrotatedfiles", 5)
	v.SetDefault("logging.fileoutput.compress", false)
	v.SetDefault("logging.fileoutput.level", "info")
}
