package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ramdhavepreetam/OmmSai/internal/config"
	"github.com/ramdhavepreetam/OmmSai/internal/mcp"
	"github.com/ramdhavepreetam/OmmSai/internal/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes read-only run-inspection tools that AI agents can
discover and invoke:
  - extraction_status: checkpoint totals, per-status counts and remaining tasks
  - extraction_failed: failed tasks with their last recorded error
  - extraction_summary: the summary written when a run finishes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}

			// Stdio transport owns stdout; logs must go elsewhere.
			cfg.Observability.LogJSON = true

			providers, err := initObservability(cfg, opts, observability.ModeMCP)
			if err != nil {
				return err
			}

			defer func() {
				shutdownErr := providers.Shutdown(context.Background())
				if shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			red, redErr := observability.NewREDMetrics(providers.Meter)
			if redErr != nil {
				return redErr
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Logger:  providers.Logger,
				Metrics: red,
				Tracer:  providers.Tracer,
			})

			return srv.Run(cmd.Context())
		},
	}
}
