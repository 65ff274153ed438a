package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

// summaryFilePerm is the permission mode for the run summary file.
const summaryFilePerm = 0o600

// renderSummary prints the end-of-run table.
func renderSummary(w io.Writer, summary batch.Summary) {
	snap := summary.Snapshot

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Total", snap.Total},
		{"Processed", snap.Processed},
		{"Success", color.GreenString("%d", snap.Success)},
		{"Partial", color.YellowString("%d", snap.Partial)},
		{"Failed", color.RedString("%d", snap.Failed)},
		{"Skipped", summary.Skipped},
		{"Elapsed", snap.Elapsed.Round(time.Second)},
		{"Throughput", fmt.Sprintf("%.1f tasks/min", snap.AverageThroughput)},
		{"Input units", humanize.Comma(snap.Usage.InputUnits)},
		{"Output units", humanize.Comma(snap.Usage.OutputUnits)},
		{"Cost so far", fmt.Sprintf("$%.4f", summary.Cost.TotalCost)},
		{"Estimated run cost", fmt.Sprintf("$%.4f", summary.Cost.EstimatedRunCost)},
	})

	if summary.Cancelled {
		tbl.AppendFooter(table.Row{"", color.YellowString("cancelled before completion")})
	}

	tbl.Render()
}

// writeRunSummary persists the machine-readable summary next to the results.
func writeRunSummary(path string, summary batch.Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	writeErr := os.WriteFile(path, append(data, '\n'), summaryFilePerm)
	if writeErr != nil {
		return fmt.Errorf("write run summary: %w", writeErr)
	}

	return nil
}
