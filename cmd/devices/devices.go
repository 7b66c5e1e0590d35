package devices

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/capturectl/capturectl/internal/app"
	"github.com/capturectl/capturectl/internal/buildinfo"
	"github.com/capturectl/capturectl/internal/conf"
	catalog "github.com/capturectl/capturectl/internal/devices"
)

// Lister enumerates the engine's audio devices.
type Lister interface {
	ListAudioDevices(kind catalog.Kind) ([]catalog.Device, error)
}

// Command creates the command that lists audio devices.
func Command(settings *conf.Settings, bi *buildinfo.Context) *cobra.Command {
	var host bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long:  "List the audio devices the engine can route to tracks, or with --host the devices the OS reports.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if host {
				list, err := catalog.HostAudioDevices()
				if err != nil {
					return err
				}
				return PrintHost(out, list)
			}

			settings.Database.Enabled = false
			settings.MQTT.Enabled = false
			a, err := app.New(settings, bi)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.Session.Initialize(cmd.Context()); err != nil {
				return err
			}
			return PrintEngine(out, a.Session.Devices())
		},
	}

	if err := setupFlags(cmd, &host); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// PrintEngine writes the output and input audio devices as a table.
func PrintEngine(out io.Writer, l Lister) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tID\tNAME")
	for _, kind := range []catalog.Kind{catalog.OutputAudio, catalog.InputAudio} {
		list, err := l.ListAudioDevices(kind)
		if err != nil {
			return err
		}
		for _, d := range list {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", d.Kind, d.ID, d.Name)
		}
	}
	return w.Flush()
}

// PrintHost writes host capture devices as a table.
func PrintHost(out io.Writer, list []catalog.HostDevice) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INDEX\tDEFAULT\tNAME\tID")
	for _, d := range list {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.Index, def, d.Name, d.ID)
	}
	return w.Flush()
}

// setupFlags configures flags specific to the devices command.
func setupFlags(cmd *cobra.Command, host *bool) error {
	cmd.Flags().BoolVar(host, "host", false, "List devices reported by the OS audio stack instead of the engine")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

var _ Lister = (*catalog.Catalog)(nil)
