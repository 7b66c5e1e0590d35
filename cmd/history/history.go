package history

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/capturectl/capturectl/internal/conf"
	"github.com/capturectl/capturectl/internal/datastore"
	"github.com/capturectl/capturectl/internal/logger"
)

// Command creates the command that lists past recordings.
func Command(settings *conf.Settings) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !settings.Database.Enabled {
				return fmt.Errorf("recording history is disabled, set database.enabled to use it")
			}

			store, err := datastore.New(datastore.Config{
				Type: settings.Database.Type,
				Path: settings.ResolvePath(settings.Database.Path),
				DSN:  settings.Database.DSN,
			}, logger.Global().Module("datastore"))
			if err != nil {
				return err
			}
			if err := store.Open(); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rows, err := store.ListRecordings(limit)
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), rows)
		},
	}

	if err := setupFlags(cmd, &limit); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// Print writes recordings newest first as a table.
func Print(out io.Writer, rows []datastore.Recording) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "No recordings")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tOUTCOME\tOUTPUT")
	for i := range rows {
		r := &rows[i]
		duration := "-"
		if r.StoppedAt != nil {
			duration = r.Duration().Round(time.Second).String()
		}
		outcome := string(r.Outcome)
		if r.Error != "" {
			outcome += " (" + r.Error + ")"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.RecordingID, r.StartedAt.Local().Format(time.DateTime), duration, outcome, r.OutputPath)
	}
	return w.Flush()
}

// setupFlags configures flags specific to the history command.
func setupFlags(cmd *cobra.Command, limit *int) error {
	cmd.Flags().IntVarP(limit, "limit", "n", 20, "Number of recordings to show (0 for all)")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
