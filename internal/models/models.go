// package models defines the data model for the activity sync pipeline
package models

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var (
	ErrEmptyArtifact = errors.New("artifact is empty")
	ErrInvalidRun    = errors.New("invalid sync run")
)

// Activity is a single activity from the Source listing. It is never persisted.
type Activity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"type"`
	SportType string    `json:"sport_type"`
	StartTime time.Time `json:"start_date"`
}

// Matches reports whether the activity is of the given kind, checking both the legacy type and the sport type.
func (a Activity) Matches(kind string) bool {
	return strings.EqualFold(a.Kind, kind) || strings.EqualFold(a.SportType, kind)
}

// Label is the name and id for log lines and progress messages.
func (a Activity) Label() string {
	if a.Name == "" {
		return a.ID
	}
	return a.Name + " (" + a.ID + ")"
}

// SyncRecord is the ledger entry for an activity the Sink has accepted.
type SyncRecord struct {
	SourceActivityID string    `json:"source_activity_id"`
	MigratedAt       time.Time `json:"migrated_at"`
}

// Artifact is an exported activity file on local disk.
type Artifact struct {
	SourceActivityID string `json:"source_activity_id"`
	Path             string `json:"path"`
	Size             int64  `json:"size"`
}

// NewArtifact stats path and returns an Artifact for it, rejecting empty files.
func NewArtifact(activityID, path string) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	a := &Artifact{SourceActivityID: activityID, Path: path, Size: info.Size()}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the artifact points at a non-empty file.
func (a *Artifact) Validate() error {
	if a.Path == "" {
		return fmt.Errorf("%w: no path for activity %s", ErrEmptyArtifact, a.SourceActivityID)
	}
	if a.Size <= 0 {
		return fmt.Errorf("%w: %s", ErrEmptyArtifact, a.Path)
	}
	return nil
}

// RunStatus is the outcome of a sync run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// SyncRun is one invocation of the sync command.
type SyncRun struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"sequence"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	WindowDays int       `json:"window_days"`
	DryRun     bool      `json:"dry_run"`
	Candidates int       `json:"candidates"`
	Pending    int       `json:"pending"`
	Uploaded   int       `json:"uploaded"`
	Failed     int       `json:"failed"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate checks the run's counters are consistent.
func (r *SyncRun) Validate() error {
	switch r.Status {
	case RunCompleted, RunFailed, RunAborted:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRun, r.Status)
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start time", ErrInvalidRun)
	}
	if r.Uploaded < 0 || r.Failed < 0 || r.Uploaded+r.Failed > r.Pending {
		return fmt.Errorf("%w: uploaded %d + failed %d exceeds pending %d", ErrInvalidRun, r.Uploaded, r.Failed, r.Pending)
	}
	if r.Pending > r.Candidates {
		return fmt.Errorf("%w: pending %d exceeds candidates %d", ErrInvalidRun, r.Pending, r.Candidates)
	}
	return nil
}
