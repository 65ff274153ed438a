package commands

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ramdhavepreetam/OmmSai/internal/config"
	"github.com/ramdhavepreetam/OmmSai/internal/drive"
)

// NewListCommand creates the list command.
func NewListCommand(opts *GlobalOptions) *cobra.Command {
	var folderID string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List the documents in a repository folder",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}

			if folderID == "" {
				folderID = cfg.Drive.FolderID
			}

			if folderID == "" {
				return fmt.Errorf("%w: pass --folder or set drive.folder_id", ErrMissingFolder)
			}

			token, err := requireEnv(cfg.Drive.TokenEnv, ErrMissingToken)
			if err != nil {
				return err
			}

			var driveOpts []drive.Option
			if cfg.Drive.BaseURL != "" {
				driveOpts = append(driveOpts, drive.WithBaseURL(cfg.Drive.BaseURL))
			}

			files, err := drive.New(token, driveOpts...).ListFolder(cmd.Context(), folderID)
			if err != nil {
				return err
			}

			renderFileTable(files)

			return nil
		},
	}

	cmd.Flags().StringVarP(&folderID, "folder", "f", "", "repository folder id to list")

	return cmd
}

func renderFileTable(files []drive.File) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"ID", "Name", "Type", "Size"})

	for _, f := range files {
		size := ""
		if f.Size > 0 {
			size = humanize.Bytes(uint64(f.Size))
		}

		tbl.AppendRow(table.Row{f.ID, f.Name, f.MimeType, size})
	}

	tbl.AppendFooter(table.Row{"", fmt.Sprintf("%d files", len(files)), "", ""})
	tbl.Render()
}
