package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/shared"
	th "github.com/desertthunder/ridesync/internal/testing"
)

func sampleRecords() []models.SyncRecord {
	return []models.SyncRecord{
		{SourceActivityID: "11223344", MigratedAt: time.Date(2024, 5, 2, 18, 30, 0, 0, time.UTC)},
		{SourceActivityID: "11220000", MigratedAt: time.Date(2024, 5, 1, 7, 5, 0, 0, time.UTC)},
	}
}

func TestLedgerExporters(t *testing.T) {
	t.Run("CSV", func(t *testing.T) {
		data, err := LedgerToCSV(sampleRecords())
		if err != nil {
			t.Fatalf("LedgerToCSV failed: %v", err)
		}
		output := string(data)
		if !strings.HasPrefix(output, "activity_id,migrated_at\n") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "11223344,2024-05-02T18:30:00Z") {
			t.Errorf("CSV missing first record, got: %s", output)
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		data, err := LedgerToMarkdown(sampleRecords())
		if err != nil {
			t.Fatalf("LedgerToMarkdown failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, "**Activities**: 2") {
			t.Errorf("Markdown missing count")
		}
		if !strings.Contains(output, "| [11223344](https://www.strava.com/activities/11223344) | 2024-05-02 18:30:00 |") {
			t.Errorf("Markdown missing row, got: %s", output)
		}
	})

	t.Run("Markdown empty", func(t *testing.T) {
		data, _ := LedgerToMarkdown(nil)
		if strings.Contains(string(data), "|") {
			t.Errorf("empty ledger should not render a table")
		}
	})

	t.Run("Text", func(t *testing.T) {
		data, err := LedgerToText(sampleRecords())
		if err != nil {
			t.Fatalf("LedgerToText failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, "11220000") || !strings.Contains(output, "2 activities") {
			t.Errorf("unexpected text output: %s", output)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := LedgerToJSON(nil)
		if err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(string(data)) != "[]" {
			t.Errorf("nil ledger should be an empty array, got %s", data)
		}

		data, err = LedgerToJSON(sampleRecords())
		if err != nil {
			t.Fatal(err)
		}
		var decoded []models.SyncRecord
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded) != 2 || decoded[0].SourceActivityID != "11223344" {
			t.Errorf("decoded = %+v", decoded)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"markdown", FormatMarkdown, false},
		{"MD", FormatMarkdown, false},
		{"text", FormatText, false},
		{"", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseFormat(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tc.in, err)
			}
			if tc.wantErr && !errors.Is(err, shared.ErrInvalidFlag) {
				t.Errorf("error = %v, want ErrInvalidFlag", err)
			}
			if got != tc.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWriteLedgerExport(t *testing.T) {
	t.Run("writes into nested directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "exports", "ledger.csv")
		got, err := WriteLedgerExport(sampleRecords(), FormatCSV, path)
		if err != nil {
			t.Fatalf("WriteLedgerExport failed: %v", err)
		}
		if got != path {
			t.Errorf("path = %s, want %s", got, path)
		}
		th.AssertFileExists(t, path)
		if !strings.Contains(th.MustReadFile(t, path), "11223344") {
			t.Errorf("export missing record")
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if _, err := WriteLedgerExport(sampleRecords(), Format("xml"), filepath.Join(t.TempDir(), "x")); err == nil {
			t.Error("expected error")
		}
	})
}

func TestRunReports(t *testing.T) {
	started := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)
	run := &models.SyncRun{
		Sequence:   3,
		StartedAt:  started,
		FinishedAt: started.Add(95 * time.Second),
		WindowDays: 7,
		Candidates: 4,
		Pending:    2,
		Uploaded:   1,
		Failed:     1,
		Status:     models.RunFailed,
	}

	t.Run("RunsToText", func(t *testing.T) {
		output := RunsToText([]*models.SyncRun{run})
		for _, want := range []string{"Status", "failed", "2/4", "1m35s"} {
			if !strings.Contains(output, want) {
				t.Errorf("table missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("RunReport", func(t *testing.T) {
		output := RunReport(run, []ReportItem{
			{ActivityID: "1", Name: "Watopia", Outcome: "uploaded"},
			{ActivityID: "2", Outcome: "export_failed", Error: "download timed out"},
		})
		if !strings.Contains(output, "1. ✓ Watopia (1) [uploaded]") {
			t.Errorf("missing success line:\n%s", output)
		}
		if !strings.Contains(output, "2. ✗ 2 [export_failed]: download timed out") {
			t.Errorf("missing failure line:\n%s", output)
		}
	})

	t.Run("RunReport dry run", func(t *testing.T) {
		dry := *run
		dry.DryRun = true
		if !strings.Contains(RunReport(&dry, nil), "dry run") {
			t.Error("dry run not mentioned")
		}
	})
}
