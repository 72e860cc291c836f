// package formatter writes sync output to disk: the unmatched report and run exports (CSV, Markdown)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/libsync/internal/tasks"
)

// WriteUnmatchedReport writes the rendered unmatched report to path, replacing any previous report.
//
// An empty report writes nothing and leaves an existing file alone. The boolean reports whether a file was written.
func WriteUnmatchedReport(path, text string) (bool, error) {
	if text == "" {
		return false, nil
	}
	if path == "" {
		return false, fmt.Errorf("report path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return false, fmt.Errorf("failed to write report: %w", err)
	}
	return true, nil
}

// ExportToCSV converts match decisions to CSV with columns: Kind, Collection, Source ID, Target ID, Confidence, Matched Via
func ExportToCSV(results []*tasks.SyncResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Kind", "Collection", "Source ID", "Target ID", "Confidence", "Matched Via"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, res := range results {
		for _, m := range res.Matches {
			record := []string{
				res.Kind.String(),
				res.Name,
				m.SourceID,
				m.TargetID,
				strconv.FormatFloat(m.Confidence, 'f', 3, 64),
				m.MatchedVia.String(),
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a run summary with one table row per collection.
func ExportToMarkdown(run *tasks.RunResult, runID string) ([]byte, error) {
	if run == nil {
		return nil, fmt.Errorf("no run to export")
	}
	var buf bytes.Buffer

	buf.WriteString("# Sync Summary\n\n")
	if runID != "" {
		buf.WriteString(fmt.Sprintf("**Run**: %s\n", runID))
	}
	buf.WriteString(fmt.Sprintf("**Mode**: %s\n", runMode(run)))
	buf.WriteString(fmt.Sprintf("**Collections**: %d\n\n", len(run.Results)))

	s := run.Summary
	buf.WriteString("| Added | Removed | Unchanged | Retained | Unmatched | Failed |\n")
	buf.WriteString("|---|---|---|---|---|---|\n")
	buf.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d | %d |\n\n", s.Added, s.Removed, s.Unchanged, s.Retained, s.Unmatched, s.Failed))

	buf.WriteString("## Collections\n\n")
	buf.WriteString("| Kind | Name | Added | Removed | Unchanged | Unmatched | Failed |\n")
	buf.WriteString("|---|---|---|---|---|---|---|\n")
	for _, res := range run.Results {
		rs := res.Summary
		buf.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %d | %d |\n",
			res.Kind, escapeCell(res.Name), rs.Added, rs.Removed, rs.Unchanged, rs.Unmatched, rs.Failed))
	}

	if len(run.Errors) > 0 {
		buf.WriteString("\n## Errors\n\n")
		for _, err := range run.Errors {
			buf.WriteString(fmt.Sprintf("- %s\n", err.Error()))
		}
	}

	return buf.Bytes(), nil
}

// WriteExport writes run to path. The format follows the extension: .csv or .md.
func WriteExport(run *tasks.RunResult, runID, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		data, err = ExportToCSV(run.Results)
	case ".md", ".markdown":
		data, err = ExportToMarkdown(run, runID)
	default:
		return fmt.Errorf("unsupported export format %q (use .csv or .md)", filepath.Ext(path))
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

func runMode(run *tasks.RunResult) string {
	for _, res := range run.Results {
		if res.DryRun {
			return "dry run"
		}
	}
	return "applied"
}

func escapeCell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}
