// Package report renders an HTML page summarizing one extraction run: status
// distribution, per-confidence field counts, and headline statistics.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	chartWidth  = "900px"
	chartHeight = "450px"

	colorSuccess = "#4caf50"
	colorPartial = "#ff9800"
	colorFailed  = "#f44336"
)

// Document is the slice of an extracted document the report reads. Unknown
// payload fields are ignored.
type Document struct {
	DocumentID string           `json:"document_id"`
	ReadStatus string           `json:"read_status"`
	Comment    string           `json:"comment"`
	Fields     map[string]Field `json:"fields"`
}

// Field is one extracted field with its confidence grade.
type Field struct {
	Value      any    `json:"value"`
	Confidence string `json:"confidence"`
	Note       string `json:"note,omitempty"`
}

// LoadResults reads an extraction results array from path.
func LoadResults(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}

	var docs []Document

	err = json.Unmarshal(data, &docs)
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	return docs, nil
}

// Render writes the full HTML report for docs to w.
func Render(w io.Writer, title string, docs []Document) error {
	page := components.NewPage()
	page.PageTitle = title

	page.AddCharts(
		statusPie(docs),
		confidenceBar(docs),
	)

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	return nil
}

// RenderFile renders the report into an HTML file at path.
func RenderFile(path, title string, docs []Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}

	renderErr := Render(f, title, docs)
	closeErr := f.Close()

	if renderErr != nil {
		return renderErr
	}

	if closeErr != nil {
		return fmt.Errorf("close report file: %w", closeErr)
	}

	return nil
}

// StatusCounts tallies documents by read status.
func StatusCounts(docs []Document) map[string]int {
	counts := make(map[string]int, 3)
	for _, doc := range docs {
		counts[doc.ReadStatus]++
	}

	return counts
}

// ConfidenceCounts tallies extracted fields by confidence grade across all
// documents.
func ConfidenceCounts(docs []Document) map[string]int {
	counts := make(map[string]int, 3)

	for _, doc := range docs {
		for _, field := range doc.Fields {
			if field.Confidence != "" {
				counts[field.Confidence]++
			}
		}
	}

	return counts
}

func statusPie(docs []Document) *charts.Pie {
	counts := StatusCounts(docs)

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Read Status",
			Subtitle: fmt.Sprintf("%d documents", len(docs)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	items := []opts.PieData{
		{Name: "success", Value: counts["success"], ItemStyle: &opts.ItemStyle{Color: colorSuccess}},
		{Name: "partial_success", Value: counts["partial_success"], ItemStyle: &opts.ItemStyle{Color: colorPartial}},
		{Name: "failed", Value: counts["failed"], ItemStyle: &opts.ItemStyle{Color: colorFailed}},
	}

	pie.AddSeries("status", items,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}"}),
	)

	return pie
}

func confidenceBar(docs []Document) *charts.Bar {
	counts := ConfidenceCounts(docs)

	// Fixed grade order; anything unexpected lands at the end.
	grades := []string{"high", "medium", "low"}

	for grade := range counts {
		if grade != "high" && grade != "medium" && grade != "low" {
			grades = append(grades, grade)
		}
	}

	sort.Strings(grades[3:])

	data := make([]opts.BarData, len(grades))
	for i, grade := range grades {
		data[i] = opts.BarData{Value: counts[grade]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Field Confidence",
			Subtitle: "Extracted fields by confidence grade",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(grades)
	bar.AddSeries("fields", data)

	return bar
}
