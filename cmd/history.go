package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ridesync/internal/formatter"
	"github.com/desertthunder/ridesync/internal/shared"
	"github.com/desertthunder/ridesync/internal/tasks"
	"github.com/desertthunder/ridesync/internal/ui"
)

const tuiLogPath = "./tmp/ridesync-tui.log"

// History prints recent runs, or opens the interactive browser with --tui.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("tui") {
		return r.TUI(ctx, cmd)
	}
	if err := r.openStore(ctx); err != nil {
		return err
	}

	runs, err := r.runs.List(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}
	if len(runs) == 0 {
		return r.writePlain("No sync runs recorded yet.\n")
	}
	return r.writePlain("%s\n", formatter.RunsToText(runs))
}

// TUI launches the interactive run and ledger browser. Syncs started from it are recorded like CLI runs.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	logFile, err := openLogFile(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer logFile.Close()
	r.SetLogger(shared.NewLogger(logFile))

	if err := r.openStore(ctx); err != nil {
		return err
	}

	deps := ui.Deps{
		Runs:   r.runs,
		Ledger: r.ledger,
		Options: tasks.SyncOptions{
			WindowDays: r.config.Sync.WindowDays,
			Limit:      r.config.Sync.Limit,
			Headless:   true,
			ScratchDir: r.config.Sync.ScratchDir,
		},
		OnFinish: func(result *tasks.SyncResult, err error) {
			r.recordRun(ctx, result, err)
		},
	}

	if engine, err := r.newEngine(ctx, false); err != nil {
		r.logger.Warn("sync unavailable in the browser", "error", err)
	} else {
		deps.Syncer = engine
	}

	p := tea.NewProgram(ui.NewModel(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
