package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramdhavepreetam/OmmSai/internal/config"
	"github.com/ramdhavepreetam/OmmSai/internal/report"
)

// NewReportCommand creates the report command.
func NewReportCommand(opts *GlobalOptions) *cobra.Command {
	var (
		resultsPath string
		outPath     string
		title       string
	)

	cmd := &cobra.Command{
		Use:           "report",
		Short:         "Render an HTML report for a finished run",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			if resultsPath == "" {
				cfg, err := config.LoadConfig(opts.ConfigPath)
				if err != nil {
					return err
				}

				resultsPath = cfg.Run.Output
			}

			docs, err := report.LoadResults(resultsPath)
			if err != nil {
				return err
			}

			renderErr := report.RenderFile(outPath, title, docs)
			if renderErr != nil {
				return renderErr
			}

			fmt.Fprintf(os.Stdout, "report written: %s (%d documents)\n", outPath, len(docs))

			return nil
		},
	}

	cmd.Flags().StringVarP(&resultsPath, "results", "r", "", "results file to report on (default from config)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "report.html", "report output path")
	cmd.Flags().StringVar(&title, "title", "Extraction Run", "report page title")

	return cmd
}
