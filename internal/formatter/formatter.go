// package formatter renders ledger records and sync runs as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/shared"
)

// Format is an export format name.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// Formats lists every accepted format name.
var Formats = []Format{FormatCSV, FormatMarkdown, FormatText, FormatJSON}

// ParseFormat accepts a format name or a common alias such as "markdown".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "", "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

const timeLayout = time.RFC3339

// LedgerToCSV writes one row per record with columns: activity_id, migrated_at.
func LedgerToCSV(records []models.SyncRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"activity_id", "migrated_at"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range records {
		if err := writer.Write([]string{r.SourceActivityID, r.MigratedAt.UTC().Format(timeLayout)}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// LedgerToMarkdown renders records as a Markdown table with Strava links.
func LedgerToMarkdown(records []models.SyncRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Synced activities\n\n")
	fmt.Fprintf(&buf, "**Activities**: %d\n\n", len(records))
	if len(records) == 0 {
		return buf.Bytes(), nil
	}

	buf.WriteString("| Activity | Migrated |\n|---|---|\n")
	for _, r := range records {
		fmt.Fprintf(&buf, "| [%s](https://www.strava.com/activities/%s) | %s |\n",
			r.SourceActivityID, r.SourceActivityID, r.MigratedAt.UTC().Format(time.DateTime))
	}
	return buf.Bytes(), nil
}

// LedgerToText renders records as a bordered terminal table.
func LedgerToText(records []models.SyncRecord) ([]byte, error) {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{strconv.Itoa(i + 1), r.SourceActivityID, r.MigratedAt.Local().Format(time.DateTime)}
	}
	out := newTable("#", "Activity", "Migrated").Rows(rows...).String()
	return []byte(fmt.Sprintf("%s\n%d activities\n", out, len(records))), nil
}

// LedgerToJSON renders records as an indented JSON array.
func LedgerToJSON(records []models.SyncRecord) ([]byte, error) {
	if records == nil {
		records = []models.SyncRecord{}
	}
	return shared.MarshalJSON(records, true)
}

// ExportLedger renders records in format.
func ExportLedger(records []models.SyncRecord, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return LedgerToCSV(records)
	case FormatMarkdown:
		return LedgerToMarkdown(records)
	case FormatText:
		return LedgerToText(records)
	case FormatJSON:
		return LedgerToJSON(records)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// WriteLedgerExport writes records to path, creating parent directories.
//
// Defaults to ridesync_ledger.{format} in the working directory.
func WriteLedgerExport(records []models.SyncRecord, format Format, path string) (string, error) {
	if path == "" {
		path = "ridesync_ledger." + string(format)
	}

	data, err := ExportLedger(records, format)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// RunsToText renders run history as a table, newest first as given.
func RunsToText(runs []*models.SyncRun) string {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		mode := ""
		if r.DryRun {
			mode = "dry run"
		}
		rows[i] = []string{
			strconv.Itoa(r.Sequence),
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Status),
			strconv.Itoa(r.WindowDays) + "d",
			fmt.Sprintf("%d/%d", r.Pending, r.Candidates),
			strconv.Itoa(r.Uploaded),
			strconv.Itoa(r.Failed),
			r.Duration().Round(time.Second).String(),
			mode,
		}
	}
	return newTable("#", "Started", "Status", "Window", "Pending", "Uploaded", "Failed", "Took", "").Rows(rows...).String()
}

// ReportItem is one line of a run report.
type ReportItem struct {
	ActivityID string
	Name       string
	Outcome    string
	Error      string
}

// RunReport renders a run summary followed by one line per item.
func RunReport(run *models.SyncRun, items []ReportItem) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Status:     %s\n", run.Status)
	fmt.Fprintf(&b, "Window:     %d days\n", run.WindowDays)
	fmt.Fprintf(&b, "Candidates: %d\n", run.Candidates)
	fmt.Fprintf(&b, "Pending:    %d\n", run.Pending)
	fmt.Fprintf(&b, "Uploaded:   %d\n", run.Uploaded)
	fmt.Fprintf(&b, "Failed:     %d\n", run.Failed)
	if run.DryRun {
		b.WriteString("Mode:       dry run (nothing uploaded or recorded)\n")
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "Error:      %s\n", run.Error)
	}

	if len(items) > 0 {
		b.WriteString("\n")
		for i, item := range items {
			mark := "✓"
			if item.Error != "" {
				mark = "✗"
			}
			label := item.ActivityID
			if item.Name != "" {
				label = fmt.Sprintf("%s (%s)", item.Name, item.ActivityID)
			}
			fmt.Fprintf(&b, "%d. %s %s [%s]", i+1, mark, label, item.Outcome)
			if item.Error != "" {
				fmt.Fprintf(&b, ": %s", item.Error)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func newTable(headers ...string) *table.Table {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}
