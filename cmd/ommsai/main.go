// Package main provides the entry point for the ommsai CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramdhavepreetam/OmmSai/cmd/ommsai/commands"
	"github.com/ramdhavepreetam/OmmSai/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ommsai",
		Short: "OmmSai - batch document extraction engine",
		Long: `OmmSai retrieves batches of remote documents and extracts structured data
from each one, surviving provider throttling, transient failures and
mid-run interruption.

Commands:
  run         Fetch and extract a folder of documents
  list        List the documents in a folder
  checkpoint  Inspect or manage the resumable run checkpoint
  report      Render an HTML report for a finished run
  mcp         Serve run-inspection tools over MCP stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var opts commands.GlobalOptions

	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file path (default .ommsai.yaml)")

	rootCmd.AddCommand(commands.NewRunCommand(&opts))
	rootCmd.AddCommand(commands.NewListCommand(&opts))
	rootCmd.AddCommand(commands.NewCheckpointCommand(&opts))
	rootCmd.AddCommand(commands.NewReportCommand(&opts))
	rootCmd.AddCommand(commands.NewMCPCommand(&opts))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "ommsai %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
