// package tasks implements the activity sync pipeline between Strava and Garmin Connect.
//
// The core abstraction is SyncEngine, which orchestrates listing, export, upload and ledger bookkeeping.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ridesync/internal/extract"
	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/observability"
	"github.com/desertthunder/ridesync/internal/shared"
)

// Item outcomes reported in [ItemResult].
const (
	OutcomeUploaded     = "uploaded"
	OutcomeDryRun       = "dry_run"
	OutcomeRejected     = "rejected"
	OutcomeUploadError  = "upload_error"
	OutcomeExportFailed = "export_failed"
)

// Lister produces the candidate activities for a window.
type Lister interface {
	ListCandidates(ctx context.Context, windowDays int) ([]models.Activity, error)
}

// Ledger is the part of the sync ledger the engine needs.
type Ledger interface {
	Init(ctx context.Context) error
	IsMigrated(ctx context.Context, id string) (bool, error)
	MarkMigrated(ctx context.Context, id string) error
}

// Extractor exports one file per activity. The result has the same length and order as activities.
type Extractor interface {
	Extract(ctx context.Context, activities []models.Activity, req extract.Request) ([]*models.Artifact, error)
}

// Uploader sends one artifact to the Sink.
type Uploader interface {
	Upload(ctx context.Context, a *models.Artifact) (bool, error)
}

// SyncOptions controls a single run.
type SyncOptions struct {
	WindowDays int
	DryRun     bool
	Limit      int    // Cap on pending activities, 0 for none
	Headless   bool
	ScratchDir string // Parent of the per-run download directory, empty for the system temp dir
}

// ItemResult is the outcome for one pending activity.
type ItemResult struct {
	Activity models.Activity
	Outcome  string
	Err      error
}

// OK reports whether the item counted as uploaded.
func (i ItemResult) OK() bool {
	return i.Outcome == OutcomeUploaded || i.Outcome == OutcomeDryRun
}

// SyncResult summarizes a run.
type SyncResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	WindowDays int
	DryRun     bool
	Candidates int
	Skipped    int // Already in the ledger
	Pending    int
	Uploaded   int
	Failed     int
	Aborted    bool // Login failed, nothing was attempted
	Items      []ItemResult
}

// Status classifies the run given the error RunSync returned.
func (r *SyncResult) Status(err error) models.RunStatus {
	switch {
	case r.Aborted:
		return models.RunAborted
	case err != nil || r.Failed > 0:
		return models.RunFailed
	default:
		return models.RunCompleted
	}
}

// Run converts the result into a history row.
func (r *SyncResult) Run(err error) *models.SyncRun {
	run := &models.SyncRun{
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		WindowDays: r.WindowDays,
		DryRun:     r.DryRun,
		Candidates: r.Candidates,
		Pending:    r.Pending,
		Uploaded:   r.Uploaded,
		Failed:     r.Failed,
		Status:     r.Status(err),
	}
	if err != nil {
		run.Error = err.Error()
	}
	return run
}

// SyncEngine runs the pipeline. Dependencies are injected so each stage can be faked.
type SyncEngine struct {
	lister    Lister
	ledger    Ledger
	extractor Extractor
	uploader  Uploader
	metrics   *observability.Metrics
	logger    *log.Logger
	now       func() time.Time
}

// NewSyncEngine creates a new SyncEngine. metrics may be nil.
func NewSyncEngine(lister Lister, ledger Ledger, extractor Extractor, uploader Uploader, metrics *observability.Metrics, logger *log.Logger) *SyncEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SyncEngine{
		lister:    lister,
		ledger:    ledger,
		extractor: extractor,
		uploader:  uploader,
		metrics:   metrics,
		logger:    shared.WithLogger(logger, "component", "sync"),
		now:       time.Now,
	}
}

// RunSync performs one fetch → filter → export → upload → record pass.
//
// Per-item failures are counted in the result and do not produce an error. A login failure returns
// an error wrapping [shared.ErrAuthFailed] with Aborted set; a ledger failure returns an error wrapping
// [shared.ErrLedger]. The result is never nil.
func (e *SyncEngine) RunSync(ctx context.Context, opts SyncOptions, progress chan<- ProgressUpdate) (result *SyncResult, err error) {
	result = &SyncResult{StartedAt: e.now(), WindowDays: opts.WindowDays, DryRun: opts.DryRun}
	defer func() {
		result.FinishedAt = e.now()
		e.metrics.RecordRun(string(result.Status(err)), result.FinishedAt)
		sendProgress(progress, completeUpdate(result))
	}()

	if e.lister == nil || e.ledger == nil || e.extractor == nil || e.uploader == nil {
		return result, fmt.Errorf("%w: sync engine is missing a dependency", shared.ErrServiceUnavailable)
	}

	if err := e.ledger.Init(ctx); err != nil {
		return result, ledgerError("init", err)
	}

	sendProgress(progress, listingUpdate(opts.WindowDays))
	candidates, err := e.lister.ListCandidates(ctx, opts.WindowDays)
	if err != nil {
		return result, fmt.Errorf("failed to list activities: %w", err)
	}
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		e.logger.Info("no activities in window", "days", opts.WindowDays)
		return result, nil
	}

	sendProgress(progress, filteringUpdate(len(candidates)))
	pending := make([]models.Activity, 0, len(candidates))
	for _, a := range candidates {
		done, err := e.ledger.IsMigrated(ctx, a.ID)
		if err != nil {
			return result, ledgerError("lookup "+a.ID, err)
		}
		if done {
			result.Skipped++
			continue
		}
		pending = append(pending, a)
	}
	if opts.Limit > 0 && len(pending) > opts.Limit {
		e.logger.Info("limiting run", "pending", len(pending), "limit", opts.Limit)
		pending = pending[:opts.Limit]
	}
	result.Pending = len(pending)
	sendProgress(progress, pendingUpdate(len(pending), result.Skipped))

	if len(pending) == 0 {
		e.logger.Info("everything already migrated", "candidates", len(candidates))
		return result, nil
	}

	dir, err := os.MkdirTemp(opts.ScratchDir, "ridesync-*")
	if err != nil {
		return result, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	sendProgress(progress, extractingUpdate(len(pending)))
	artifacts, err := e.extractor.Extract(ctx, pending, extract.Request{Dir: dir, Headless: opts.Headless})
	if err != nil {
		result.Aborted = true
		e.logger.Error("export session failed, nothing uploaded", "pending", len(pending), "error", err)
		return result, fmt.Errorf("sync aborted: %w", err)
	}

	for i, activity := range pending {
		var artifact *models.Artifact
		if i < len(artifacts) {
			artifact = artifacts[i]
		}

		sendProgress(progress, uploadingUpdate(i+1, len(pending), activity))
		item, err := e.handle(ctx, activity, artifact, opts.DryRun)
		if err != nil {
			return result, err
		}

		result.Items = append(result.Items, item)
		if item.OK() {
			result.Uploaded++
		} else {
			result.Failed++
		}
		sendProgress(progress, itemDoneUpdate(i+1, len(pending), item))
	}

	e.logger.Info("sync finished",
		"candidates", result.Candidates,
		"skipped", result.Skipped,
		"uploaded", result.Uploaded,
		"failed", result.Failed,
		"dry_run", opts.DryRun,
	)
	return result, nil
}

// handle uploads one artifact and records it. Only a ledger failure is returned as an error.
func (e *SyncEngine) handle(ctx context.Context, a models.Activity, artifact *models.Artifact, dryRun bool) (ItemResult, error) {
	item := ItemResult{Activity: a}
	if artifact == nil {
		e.metrics.RecordExtractionFailure()
		item.Outcome = OutcomeExportFailed
		item.Err = fmt.Errorf("%w: no file for activity %s", shared.ErrExtraction, a.ID)
		return item, nil
	}
	defer func() {
		if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("failed to remove artifact", "path", artifact.Path, "error", err)
		}
	}()

	if dryRun {
		e.logger.Info("dry run, not uploading", "activity", a.ID, "bytes", artifact.Size)
		e.metrics.RecordUpload(observability.OutcomeDryRun)
		item.Outcome = OutcomeDryRun
		return item, nil
	}

	ok, err := e.uploader.Upload(ctx, artifact)
	switch {
	case err != nil:
		e.logger.Error("upload failed", "activity", a.ID, "error", err)
		e.metrics.RecordUpload(observability.OutcomeError)
		item.Outcome = OutcomeUploadError
		item.Err = err
		return item, nil
	case !ok:
		e.metrics.RecordUpload(observability.OutcomeRejected)
		item.Outcome = OutcomeRejected
		item.Err = fmt.Errorf("%w: activity %s", shared.ErrUploadRejected, a.ID)
		return item, nil
	}

	e.metrics.RecordUpload(observability.OutcomeAccepted)
	if err := e.ledger.MarkMigrated(ctx, a.ID); err != nil {
		return item, ledgerError("mark "+a.ID, err)
	}
	item.Outcome = OutcomeUploaded
	return item, nil
}

func ledgerError(op string, err error) error {
	if errors.Is(err, shared.ErrLedger) {
		return fmt.Errorf("ledger %s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", shared.ErrLedger, op, err)
}
