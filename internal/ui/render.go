package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"

	"github.com/desertthunder/ridesync/internal/tasks"
)

func (m *Model) renderRunList() string {
	keys := []key.Binding{m.keys.enter, m.keys.ledger, m.keys.refresh}
	if m.deps.Syncer != nil {
		keys = append(keys, m.keys.sync)
	}
	keys = append(keys, m.keys.quit)
	return fmt.Sprintf("%s\n\n%s", m.runList.View(), m.help.ShortHelpView(keys))
}

func (m *Model) renderRunDetail() string {
	r := m.selected
	if r == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(fmt.Sprintf("Run #%d", r.Sequence)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Status:     %s\n", styles.Status(r.Status))
	fmt.Fprintf(&b, "Started:    %s\n", r.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "Took:       %s\n", r.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Window:     %d days\n", r.WindowDays)
	fmt.Fprintf(&b, "Candidates: %d\n", r.Candidates)
	fmt.Fprintf(&b, "Pending:    %d\n", r.Pending)
	fmt.Fprintf(&b, "Uploaded:   %s\n", styles.ok.Render(fmt.Sprint(r.Uploaded)))
	fmt.Fprintf(&b, "Failed:     %d\n", r.Failed)
	if r.DryRun {
		b.WriteString(styles.info.Render("Dry run: nothing was uploaded or recorded") + "\n")
	}
	if r.Error != "" {
		b.WriteString("\n" + styles.err.Render(r.Error) + "\n")
	}
	b.WriteString("\n" + styles.help.Render("id "+r.ID) + "\n\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit}))
	return b.String()
}

func (m *Model) renderLedger() string {
	return fmt.Sprintf("%s\n\n%s", m.ledgerList.View(), m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit}))
}

func (m *Model) renderConfirm() string {
	opts := m.deps.Options
	title := styles.title.Render("Sync Strava virtual rides to Garmin now?")
	info := fmt.Sprintf("\nWindow: last %d days\nLimit: %s\n", opts.WindowDays, limitText(opts.Limit))
	if opts.DryRun {
		info += styles.info.Render("Dry run: files are exported but not uploaded") + "\n"
	}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no}))
}

func (m *Model) renderSync() string {
	title := styles.title.Render("Syncing")

	var phase string
	switch m.progress.Phase {
	case tasks.Listing:
		phase = "Listing activities..."
	case tasks.Filtering:
		phase = "Checking the ledger..."
	case tasks.Extracting:
		phase = "Exporting files through the browser..."
	case tasks.Uploading:
		phase = fmt.Sprintf("Uploading (%d/%d)", m.progress.Step, m.progress.Total)
	default:
		phase = "Starting..."
	}
	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, styles.help.Render(m.progress.Message))
}

func (m *Model) renderResult() string {
	keys := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
	r := m.result

	var b strings.Builder
	switch {
	case r != nil && r.Aborted:
		b.WriteString(styles.err.Render("✗ Sync aborted"))
	case m.syncErr != nil:
		b.WriteString(styles.err.Render("✗ Sync failed"))
	case r != nil && r.Failed > 0:
		b.WriteString(styles.warn.Render(fmt.Sprintf("Sync finished with %d failures", r.Failed)))
	default:
		b.WriteString(styles.ok.Render("✓ Sync complete"))
	}
	b.WriteString("\n\n")

	if r != nil {
		fmt.Fprintf(&b, "Candidates: %d  Already synced: %d  Uploaded: %d  Failed: %d\n", r.Candidates, r.Skipped, r.Uploaded, r.Failed)
		for _, item := range r.Items {
			if item.OK() {
				fmt.Fprintf(&b, "  %s %s\n", styles.ok.Render("✓"), item.Activity.Label())
				continue
			}
			fmt.Fprintf(&b, "  %s %s %s\n", styles.err.Render("✗"), item.Activity.Label(), styles.help.Render(item.Outcome))
		}
	}
	if m.syncErr != nil {
		b.WriteString("\n" + styles.err.Render(m.syncErr.Error()) + "\n")
	}

	b.WriteString("\n" + keys)
	return b.String()
}

func limitText(n int) string {
	if n <= 0 {
		return "none"
	}
	return fmt.Sprint(n)
}
