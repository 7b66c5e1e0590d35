package record

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/capturectl/capturectl/internal/app"
	"github.com/capturectl/capturectl/internal/buildinfo"
	"github.com/capturectl/capturectl/internal/conf"
	"github.com/capturectl/capturectl/internal/logger"
)

// Recorder is the part of the session the record command drives.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RecordingID() string
}

// Command creates the command that records until interrupted or for a fixed duration.
func Command(settings *conf.Settings, bi *buildinfo.Context) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the screen, camera and audio devices",
		Long:  "Initialize the engine, record until Ctrl+C or --duration elapses, then shut down.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(settings, bi)
			if err != nil {
				return err
			}
			a.ConnectMQTT(ctx)

			// The publisher outlives ctx so the final transitions still go out.
			pubCtx, cancelPub := context.WithCancel(context.Background())
			var g errgroup.Group
			g.Go(func() error { return a.RunPublisher(pubCtx) })

			runErr := Run(ctx, a.Session, duration, cmd.OutOrStdout())

			closeErr := a.Close()
			cancelPub()
			if err := g.Wait(); err != nil {
				logger.Global().Module("main").Warn("state publisher stopped with error", logger.Error(err))
			}

			if runErr != nil {
				return runErr
			}
			return closeErr
		},
	}

	if err := setupFlags(cmd, settings, &duration); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// Run starts a recording, waits for ctx to be done or duration to elapse,
// and stops it. A zero duration records until ctx is done. The stop is not
// bound to ctx so an interrupt still produces a finished file.
func Run(ctx context.Context, rec Recorder, duration time.Duration, out io.Writer) error {
	if err := rec.Start(ctx); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	id := rec.RecordingID()
	_, _ = fmt.Fprintf(out, "Recording %s started\n", id)

	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(out, "Interrupted, stopping recording")
	case <-timeout:
	}

	if err := rec.Stop(context.Background()); err != nil {
		return fmt.Errorf("failed to stop recording %s: %w", id, err)
	}
	_, _ = fmt.Fprintf(out, "Recording %s stopped\n", id)
	return nil
}

// setupFlags configures flags specific to the record command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings, duration *time.Duration) error {
	cmd.Flags().DurationVar(duration, "duration", 0, "Stop after this long (0 records until interrupted)")
	cmd.Flags().StringVarP(&settings.Output.Path, "output-path", "o", viper.GetString("output.path"), "Directory recordings are written to")
	cmd.Flags().StringVar(&settings.Output.Format, "format", viper.GetString("output.format"), "Container format")
	cmd.Flags().BoolVar(&settings.Scene.Camera, "camera", viper.GetBool("scene.camera"), "Add the camera overlay when a camera is found")
	cmd.Flags().IntVar(&settings.Video.FPS, "fps", viper.GetInt("video.fps"), "Recording frame rate")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
