// Package export renders finished runs, batches and designs for people:
// CSV and XLSX tables, Markdown reports and standalone HTML pages.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"geolift/app"
	"geolift/domain/experiment"
	"geolift/internal/errors"
)

// Format is an export file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", errors.Configuration("export", "format", fmt.Sprintf("unknown export format %q", s))
}

// FormatFromPath picks the format from a file name's extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Run writes one run in the given format.
func Run(w io.Writer, run *experiment.RunRecord, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, run)
	case FormatCSV:
		return DailyCSV(w, run)
	case FormatXLSX:
		return RunWorkbook(w, run)
	case FormatMarkdown:
		_, err := io.WriteString(w, RunMarkdown(run))
		return err
	case FormatHTML:
		_, err := w.Write(ToHTML("Experiment "+run.ID.String(), []byte(RunMarkdown(run))))
		return err
	}
	return errors.Configuration("export", "format", fmt.Sprintf("unsupported format %q for a run", f))
}

// Batch writes a batch summary in the given format.
func Batch(w io.Writer, summary *experiment.BatchSummary, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, summary)
	case FormatCSV:
		return BatchCSV(w, summary)
	case FormatXLSX:
		return BatchWorkbook(w, summary)
	case FormatMarkdown:
		_, err := io.WriteString(w, BatchMarkdown(summary))
		return err
	case FormatHTML:
		_, err := w.Write(ToHTML("Batch "+summary.ID.String(), []byte(BatchMarkdown(summary))))
		return err
	}
	return errors.Configuration("export", "format", fmt.Sprintf("unsupported format %q for a batch", f))
}

// Design writes a test plan. Only JSON, Markdown and HTML apply.
func Design(w io.Writer, d *app.DesignResult, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, d)
	case FormatMarkdown:
		_, err := io.WriteString(w, DesignMarkdown(d))
		return err
	case FormatHTML:
		_, err := w.Write(ToHTML("Test design "+d.TestMarket, []byte(DesignMarkdown(d))))
		return err
	}
	return errors.Configuration("export", "format", fmt.Sprintf("unsupported format %q for a design", f))
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
