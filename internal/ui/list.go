package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/ridesync/internal/models"
)

var (
	_ list.Item = runItem{}
	_ list.Item = recordItem{}
)

// runItem wraps [models.SyncRun] to implement [list.Item].
type runItem struct {
	run *models.SyncRun
}

func (i runItem) FilterValue() string { return string(i.run.Status) }
func (i runItem) Title() string {
	return fmt.Sprintf("#%d  %s  %s", i.run.Sequence, i.run.StartedAt.Local().Format(time.DateTime), styles.Status(i.run.Status))
}
func (i runItem) Description() string {
	desc := fmt.Sprintf("%d uploaded • %d failed • %d/%d pending • %dd window",
		i.run.Uploaded, i.run.Failed, i.run.Pending, i.run.Candidates, i.run.WindowDays)
	if i.run.DryRun {
		desc += " • dry run"
	}
	return desc
}

// recordItem wraps [models.SyncRecord] to implement [list.Item].
type recordItem struct {
	record models.SyncRecord
}

func (i recordItem) FilterValue() string { return i.record.SourceActivityID }
func (i recordItem) Title() string       { return i.record.SourceActivityID }
func (i recordItem) Description() string {
	return "migrated " + i.record.MigratedAt.Local().Format(time.DateTime)
}
