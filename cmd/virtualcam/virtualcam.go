package virtualcam

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/capturectl/capturectl/internal/app"
	"github.com/capturectl/capturectl/internal/buildinfo"
	"github.com/capturectl/capturectl/internal/conf"
	"github.com/capturectl/capturectl/internal/session"
)

// Controller is the virtual camera surface used by the subcommands.
type Controller interface {
	IsInstalled() (bool, error)
	Install() (bool, error)
	Uninstall() (bool, error)
	Start() error
	Stop() error
	State() session.VirtualCamState
}

// action runs against a connected engine.
type action func(ctx context.Context, vc Controller, out io.Writer) error

// Command creates the virtualcam command group.
func Command(settings *conf.Settings, bi *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "virtualcam",
		Short: "Manage the virtual camera plugin",
	}

	cmd.AddCommand(
		subcommand(settings, bi, "status", "Show whether the plugin is installed", Status),
		subcommand(settings, bi, "install", "Install the plugin", Install),
		subcommand(settings, bi, "uninstall", "Stop the virtual camera and uninstall the plugin", Uninstall),
		subcommand(settings, bi, "start", "Run the virtual camera until interrupted", Start),
	)

	return cmd
}

func subcommand(settings *conf.Settings, bi *buildinfo.Context, use, short string, run action) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			settings.Database.Enabled = false
			settings.MQTT.Enabled = false
			a, err := app.New(settings, bi)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.Session.Initialize(ctx); err != nil {
				return err
			}
			return run(ctx, a.VirtualCam, cmd.OutOrStdout())
		},
	}
}

// Status prints the plugin state.
func Status(_ context.Context, vc Controller, out io.Writer) error {
	ok, err := vc.IsInstalled()
	if err != nil {
		return err
	}
	if ok {
		_, _ = fmt.Fprintln(out, "Virtual camera plugin is installed")
	} else {
		_, _ = fmt.Fprintln(out, "Virtual camera plugin is not installed")
	}
	return nil
}

// Install installs the plugin.
func Install(_ context.Context, vc Controller, out io.Writer) error {
	ok, err := vc.Install()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("virtual camera plugin is still not installed after install")
	}
	_, _ = fmt.Fprintln(out, "Virtual camera plugin installed")
	return nil
}

// Uninstall removes the plugin.
func Uninstall(_ context.Context, vc Controller, out io.Writer) error {
	ok, err := vc.Uninstall()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("virtual camera plugin is still installed after uninstall")
	}
	_, _ = fmt.Fprintln(out, "Virtual camera plugin uninstalled")
	return nil
}

// Start runs the virtual camera until ctx is done.
func Start(ctx context.Context, vc Controller, out io.Writer) error {
	if err := vc.Start(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Virtual camera running, press Ctrl+C to stop")
	<-ctx.Done()
	if err := vc.Stop(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Virtual camera stopped")
	return nil
}

var _ Controller = (*session.VirtualCam)(nil)
