package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/libsync/internal/tasks"
)

var summaryHeaders = []string{"Kind", "Collection", "Added", "Removed", "Unchanged", "Retained", "Unmatched", "Failed"}

// RenderSummary renders the per-collection table, the totals and any collection errors of a run.
func RenderSummary(run *tasks.RunResult) string {
	if run == nil {
		return Error("No result available")
	}

	dryRun := false
	rows := make([][]string, 0, len(run.Results))
	for _, res := range run.Results {
		dryRun = dryRun || res.DryRun
		s := res.Summary
		rows = append(rows, []string{
			res.Kind.String(),
			collectionName(res),
			strconv.Itoa(s.Added),
			strconv.Itoa(s.Removed),
			strconv.Itoa(s.Unchanged),
			strconv.Itoa(s.Retained),
			strconv.Itoa(s.Unmatched),
			strconv.Itoa(s.Failed),
		})
	}

	var b strings.Builder
	switch {
	case dryRun:
		b.WriteString(Title("Dry run: nothing was changed"))
	case len(run.Errors) > 0 || run.Summary.Failed > 0:
		b.WriteString(Title("Sync finished with errors"))
	default:
		b.WriteString(Title("✓ Sync complete"))
	}
	b.WriteString("\n")

	if len(rows) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(styles.help).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return lipgloss.NewStyle().Bold(true).Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			}).
			Headers(summaryHeaders...).
			Rows(rows...)
		b.WriteString(t.String())
		b.WriteString("\n")
	}

	s := run.Summary
	b.WriteString(fmt.Sprintf("\nTotal: %s %s =%d, %d retained\n",
		Success(fmt.Sprintf("+%d", s.Added)), Warning(fmt.Sprintf("-%d", s.Removed)), s.Unchanged, s.Retained))
	b.WriteString(Muted(fmt.Sprintf("Matching: %d cache hits, %d searched", s.CacheHits, s.Searched)))
	b.WriteString("\n")

	if s.Unmatched > 0 {
		b.WriteString(Warning(fmt.Sprintf("%d items not found", s.Unmatched)))
		b.WriteString("\n")
	}
	if s.Failed > 0 {
		b.WriteString(Error(fmt.Sprintf("%d operations failed", s.Failed)))
		b.WriteString("\n")
	}
	for _, err := range run.Errors {
		b.WriteString(Error("✗ " + err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

func collectionName(res *tasks.SyncResult) string {
	if res.Name != "" {
		return res.Name
	}
	if res.SourceID != "" {
		return res.SourceID
	}
	return "-"
}
