// Package report renders a batch summary for the operator: a terminal panel
// and an optional workbook.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/danmuck/vcictl/internal/batch"
	"github.com/xuri/excelize/v2"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// Render returns the run summary panel.
func Render(s batch.Summary) string {
	title := fmt.Sprintf("vcictl %s run %s", s.Workflow, s.RunID)
	if s.DryRun {
		title += " (dry run)"
	}
	lines := []string{
		titleStyle.Render(title),
		mutedStyle.Render(fmt.Sprintf("elapsed %s", s.Elapsed().Round(time.Second))),
		"",
		section(okStyle, "succeeded", s.Identifiers(batch.StatusSucceeded)),
		section(mutedStyle, "dry run", s.Identifiers(batch.StatusDryRun)),
	}

	failures := s.Failures()
	head := fmt.Sprintf("failed (%d)", len(failures))
	if len(failures) == 0 {
		lines = append(lines, okStyle.Render(head))
	} else {
		lines = append(lines, failStyle.Render(head))
		for _, o := range failures {
			lines = append(lines, fmt.Sprintf("  %s: %v", o.Identifier, o.Err))
		}
	}
	lines = append(lines,
		section(mutedStyle, "filtered out", s.Filtered),
		section(mutedStyle, "not in catalog", s.Unmatched),
	)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func section(style lipgloss.Style, name string, ids []string) string {
	head := style.Render(fmt.Sprintf("%s (%d)", name, len(ids)))
	if len(ids) == 0 {
		return head
	}
	return head + "\n  " + strings.Join(ids, "\n  ")
}

const (
	sheetSummary = "Summary"
	sheetRecords = "Records"
)

// WriteWorkbook saves the summary as an xlsx with one row per record,
// including filtered and unmatched identifiers.
func WriteWorkbook(path string, s batch.Summary) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	first := f.GetSheetName(0)
	if err := f.SetSheetName(first, sheetSummary); err != nil {
		return fmt.Errorf("report: rename sheet: %w", err)
	}
	meta := [][]any{
		{"run_id", s.RunID},
		{"workflow", string(s.Workflow)},
		{"dry_run", s.DryRun},
		{"started", s.Started.Format(time.RFC3339)},
		{"finished", s.Finished.Format(time.RFC3339)},
		{"succeeded", s.Count(batch.StatusSucceeded)},
		{"failed", s.Count(batch.StatusFailed)},
		{"filtered", len(s.Filtered)},
		{"unmatched", len(s.Unmatched)},
	}
	for i, row := range meta {
		if err := setRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(sheetRecords); err != nil {
		return fmt.Errorf("report: add sheet: %w", err)
	}
	if err := setRow(f, sheetRecords, 1, []any{"identifier", "status", "seconds", "error"}); err != nil {
		return err
	}
	row := 2
	for _, o := range s.Outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		if err := setRow(f, sheetRecords, row, []any{o.Identifier, string(o.Status), o.Duration.Seconds(), errText}); err != nil {
			return err
		}
		row++
	}
	for _, extra := range []struct {
		status string
		ids    []string
	}{{"filtered", s.Filtered}, {"unmatched", s.Unmatched}} {
		for _, id := range extra.ids {
			if err := setRow(f, sheetRecords, row, []any{id, extra.status, 0, ""}); err != nil {
				return err
			}
			row++
		}
	}
	_ = f.SetColWidth(sheetRecords, "A", "A", 40)
	_ = f.SetColWidth(sheetRecords, "D", "D", 80)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("report: write %s row %d: %w", sheet, row, err)
	}
	return nil
}
