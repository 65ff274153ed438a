package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ramdhavepreetam/OmmSai/internal/checkpoint"
	"github.com/ramdhavepreetam/OmmSai/internal/config"
)

// NewCheckpointCommand creates the checkpoint command group.
func NewCheckpointCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "checkpoint",
		Short:         "Inspect or manage the resumable run checkpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newCheckpointShowCommand(opts))
	cmd.AddCommand(newCheckpointClearCommand(opts))
	cmd.AddCommand(newCheckpointExportFailedCommand(opts))

	return cmd
}

func checkpointPath(opts *GlobalOptions, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return "", err
	}

	return cfg.Checkpoint.Path, nil
}

func newCheckpointShowCommand(opts *GlobalOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:           "show",
		Short:         "Show checkpoint statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			resolved, err := checkpointPath(opts, path)
			if err != nil {
				return err
			}

			state, err := checkpoint.ReadFile(resolved)
			if err != nil {
				if errors.Is(err, checkpoint.ErrNotFound) {
					fmt.Fprintf(os.Stdout, "no checkpoint at %s\n", resolved)

					return nil
				}

				return err
			}

			renderCheckpoint(resolved, state)

			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "checkpoint file path (default from config)")

	return cmd
}

func newCheckpointClearCommand(opts *GlobalOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:           "clear",
		Short:         "Discard the checkpoint so the next run starts fresh",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			resolved, err := checkpointPath(opts, path)
			if err != nil {
				return err
			}

			store, err := checkpoint.Open(resolved, checkpoint.DefaultBatchSize)
			if err != nil {
				return err
			}

			clearErr := store.Clear()
			if clearErr != nil {
				return clearErr
			}

			fmt.Fprintf(os.Stdout, "checkpoint cleared: %s\n", resolved)

			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "checkpoint file path (default from config)")

	return cmd
}

func newCheckpointExportFailedCommand(opts *GlobalOptions) *cobra.Command {
	var path, out string

	cmd := &cobra.Command{
		Use:           "export-failed",
		Short:         "Export the failed task map as JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			resolved, err := checkpointPath(opts, path)
			if err != nil {
				return err
			}

			store, err := checkpoint.Open(resolved, checkpoint.DefaultBatchSize)
			if err != nil {
				return err
			}

			exportErr := store.ExportFailed(out)
			if exportErr != nil {
				return exportErr
			}

			fmt.Fprintf(os.Stdout, "failed tasks exported: %s\n", out)

			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "checkpoint file path (default from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "failed_tasks.json", "export destination")

	return cmd
}

func renderCheckpoint(path string, state checkpoint.State) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Path", path},
		{"Total", state.Stats.Total},
		{"Processed", state.Stats.Processed},
		{"Success", state.Stats.Success},
		{"Partial", state.Stats.Partial},
		{"Failed", state.Stats.Failed},
	})

	if !state.Stats.StartedAt.IsZero() {
		tbl.AppendRow(table.Row{"Started", state.Stats.StartedAt.Format("2006-01-02 15:04:05 MST")})
	}

	if !state.LastFlush.IsZero() {
		tbl.AppendRow(table.Row{"Last flush", state.LastFlush.Format("2006-01-02 15:04:05 MST")})
	}

	tbl.Render()
}
