package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ridesync/internal/formatter"
	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/shared"
	"github.com/desertthunder/ridesync/internal/tasks"
)

// syncOptions merges the sync flags over the config file.
func (r *Runner) syncOptions(cmd *cli.Command) (tasks.SyncOptions, error) {
	opts := tasks.SyncOptions{
		WindowDays: r.config.Sync.WindowDays,
		DryRun:     cmd.Bool("dry-run"),
		Limit:      r.config.Sync.Limit,
		Headless:   r.config.Browser.Headless,
		ScratchDir: r.config.Sync.ScratchDir,
	}
	if cmd.IsSet("days") {
		opts.WindowDays = cmd.Int("days")
	}
	if cmd.IsSet("limit") {
		opts.Limit = cmd.Int("limit")
	}
	if cmd.IsSet("headless") {
		opts.Headless = cmd.Bool("headless")
	}
	if cmd.Bool("headful") {
		opts.Headless = false
	}

	if opts.WindowDays <= 0 {
		return opts, fmt.Errorf("%w: --days must be positive", shared.ErrInvalidFlag)
	}
	if opts.Limit < 0 {
		return opts, fmt.Errorf("%w: --limit cannot be negative", shared.ErrInvalidFlag)
	}
	return opts, nil
}

// Sync runs the pipeline once, records the run and prints a report.
//
// The command fails (exit 1) when any item failed or the run was aborted.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	opts, err := r.syncOptions(cmd)
	if err != nil {
		return err
	}

	engine, err := r.newEngine(ctx, opts.DryRun)
	if err != nil {
		return err
	}

	r.logger.Info("starting sync", "days", opts.WindowDays, "dry_run", opts.DryRun, "limit", opts.Limit, "headless", opts.Headless)

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()

	result, syncErr := engine.RunSync(ctx, opts, progress)
	close(progress)
	<-done

	run := r.recordRun(ctx, result, syncErr)

	r.writePlainHeader(fmt.Sprintf("Sync run #%d", run.Sequence))
	r.writePlain("%s", formatter.RunReport(run, reportItems(result.Items)))

	switch {
	case syncErr != nil:
		return fmt.Errorf("%w: %w", shared.ErrSyncFailed, syncErr)
	case result.Failed > 0:
		r.logger.Error("sync finished with failures", "uploaded", result.Uploaded, "failed", result.Failed, "pending", result.Pending)
		return fmt.Errorf("%w: %d of %d activities failed", shared.ErrSyncFailed, result.Failed, result.Pending)
	}
	return nil
}

// recordRun stores the run in the history and writes the metrics textfile. Failures here are logged only.
func (r *Runner) recordRun(ctx context.Context, result *tasks.SyncResult, syncErr error) *models.SyncRun {
	run := result.Run(syncErr)
	if err := r.runs.Create(ctx, run); err != nil {
		r.logger.Warn("failed to record run", "error", err)
	}
	if err := r.metrics.WriteTextfile(r.config.Metrics.Textfile); err != nil {
		r.logger.Warn("failed to write metrics", "path", r.config.Metrics.Textfile, "error", err)
	}
	return run
}

func reportItems(items []tasks.ItemResult) []formatter.ReportItem {
	report := make([]formatter.ReportItem, 0, len(items))
	for _, item := range items {
		ri := formatter.ReportItem{
			ActivityID: item.Activity.ID,
			Name:       item.Activity.Name,
			Outcome:    item.Outcome,
		}
		switch {
		case item.Err != nil:
			ri.Error = item.Err.Error()
		case !item.OK():
			ri.Error = item.Outcome
		}
		report = append(report, ri)
	}
	return report
}

// Activities lists the candidates for the window, marking the ones already migrated.
func (r *Runner) Activities(ctx context.Context, cmd *cli.Command) error {
	days := r.config.Sync.WindowDays
	if cmd.IsSet("days") {
		days = cmd.Int("days")
	}

	source, err := r.activitySource()
	if err != nil {
		return err
	}
	if err := r.openStore(ctx); err != nil {
		return err
	}

	candidates, err := tasks.NewActivityLister(source, r.config.Sync, r.logger).ListCandidates(ctx, days)
	if err != nil {
		return err
	}

	type row struct {
		models.Activity
		Migrated bool `json:"migrated"`
	}
	rows := make([]row, 0, len(candidates))
	for _, a := range candidates {
		migrated, err := r.ledger.IsMigrated(ctx, a.ID)
		if err != nil {
			return err
		}
		if migrated && cmd.Bool("pending") {
			continue
		}
		rows = append(rows, row{Activity: a, Migrated: migrated})
	}

	if cmd.Bool("json") {
		return r.writeJSON(rows, true)
	}

	r.writePlain("%d %s activities in the last %d days:\n\n", len(rows), r.config.Sync.ActivityType, days)
	for i, a := range rows {
		mark := " "
		if a.Migrated {
			mark = "✓"
		}
		r.writePlain("%d. [%s] %s  %s\n", i+1, mark, a.StartTime.Local().Format(time.DateTime), a.Label())
	}
	return nil
}
