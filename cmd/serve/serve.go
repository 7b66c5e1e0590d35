package serve

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/capturectl/capturectl/internal/app"
	"github.com/capturectl/capturectl/internal/buildinfo"
	"github.com/capturectl/capturectl/internal/conf"
	"github.com/capturectl/capturectl/internal/logger"
)

// Command creates the command that runs the control-plane server.
func Command(settings *conf.Settings, bi *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recording control server",
		Long:  "Serve the recording, preview and virtual camera RPCs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(settings, bi)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Global().Module("main").Warn("shutdown incomplete", logger.Error(err))
				}
			}()

			return a.Serve(ctx)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Listen, "listen", viper.GetString("webserver.listen"), "Listen address of the control server")
	cmd.Flags().BoolVar(&settings.Metrics.Enabled, "enable-metrics", viper.GetBool("metrics.enabled"), "Expose Prometheus metrics on /metrics")
	cmd.Flags().BoolVar(&settings.MQTT.Enabled, "enable-mqtt", viper.GetBool("mqtt.enabled"), "Publish recording state over MQTT")
	cmd.Flags().StringVar(&settings.MQTT.Broker, "broker", viper.GetString("mqtt.broker"), "MQTT broker URL")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
