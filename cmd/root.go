package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/capturectl/capturectl/cmd/devices"
	"github.com/capturectl/capturectl/cmd/history"
	"github.com/capturectl/capturectl/cmd/record"
	"github.com/capturectl/capturectl/cmd/serve"
	"github.com/capturectl/capturectl/cmd/virtualcam"
	"github.com/capturectl/capturectl/internal/buildinfo"
	"github.com/capturectl/capturectl/internal/conf"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
)

// sentryFlushTimeout bounds how long exit waits for queued error reports.
const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, bi *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "capturectl",
		Short:         "Screen and camera recording session controller",
		Version:       bi.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	subcommands := []*cobra.Command{
		serve.Command(settings, bi),
		record.Command(settings, bi),
		devices.Command(settings, bi),
		virtualcam.Command(settings, bi),
		history.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	var central *logger.CentralLogger
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := conf.ValidateSettings(settings); err != nil {
			return err
		}

		cl, err := initialize(settings, bi)
		if err != nil {
			return err
		}
		central = cl
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if settings.Sentry.Enabled {
			errors.FlushSentry(sentryFlushTimeout)
		}
		if central != nil {
			_ = central.Flush()
		}
	}

	return rootCmd
}

// initialize is called before any subcommand runs. It sets up the global
// logger and, when enabled, error telemetry.
func initialize(settings *conf.Settings, bi *buildinfo.Context) (*logger.CentralLogger, error) {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	log := central.Module("main")
	log.Debug("starting capturectl",
		logger.String("version", bi.GetVersion()),
		logger.String("build_date", bi.GetBuildDate()),
		logger.String("config_file", settings.ConfigFile))

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, bi.Release()); err != nil {
			log.Warn("error telemetry disabled", logger.Error(err))
		}
	}

	return central, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Engine.URL, "engine-url", viper.GetString("engine.url"), "Websocket URL of the engine host")
	rootCmd.PersistentFlags().StringVar(&settings.Engine.Platform, "platform", viper.GetString("engine.platform"), "Capability profile override (windows, darwin, linux)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
