package tasks

import (
	"fmt"

	"github.com/desertthunder/ridesync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Listing Phase = iota
	Filtering
	Extracting
	Uploading
	Watching
	Complete
)

func (p Phase) String() string {
	switch p {
	case Listing:
		return "listing"
	case Filtering:
		return "filtering"
	case Extracting:
		return "extracting"
	case Uploading:
		return "uploading"
	case Watching:
		return "watching"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func listingUpdate(days int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Listing,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Listing Strava activities from the last %d days...", days),
	}
}

func filteringUpdate(candidates int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Filtering,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Checking %d candidates against the ledger...", candidates),
	}
}

func pendingUpdate(pending, skipped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Filtering,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%d to sync, %d already migrated", pending, skipped),
	}
}

func extractingUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Extracting,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Exporting %d activities from Strava...", total),
	}
}

func uploadingUpdate(step, total int, a models.Activity) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Uploading,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, a.Label()),
	}
}

func itemDoneUpdate(step, total int, item ItemResult) ProgressUpdate {
	mark := "✓"
	if !item.OK() {
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:   Uploading,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, mark, item.Activity.Label(), item.Outcome),
		Data:    item,
	}
}

func completeUpdate(result *SyncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Done: %d uploaded, %d failed", result.Uploaded, result.Failed),
		Data:    result,
	}
}

func watchedUpdate(n int, path string, ok bool) ProgressUpdate {
	mark := "✓"
	if !ok {
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:   Watching,
		Step:    n,
		Message: fmt.Sprintf("%s %s", mark, path),
	}
}
