package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ridesync/internal/shared"
	"github.com/desertthunder/ridesync/internal/tasks"
)

// Watch uploads activity files dropped into a directory until interrupted.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.StringArg("dir")
	if dir == "" {
		return fmt.Errorf("%w: directory to watch", shared.ErrMissingArgument)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", shared.ErrInvalidArgument, dir)
	}

	sink, err := r.uploadSink()
	if err != nil {
		return err
	}

	watcher := tasks.NewWatcher(dir, tasks.NewUploadRelay(sink, r.logger), tasks.WatchOptions{
		Settle:   cmd.Duration("settle"),
		Remove:   cmd.Bool("remove"),
		Existing: cmd.Bool("existing"),
	}, r.logger)

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			if update.Phase == tasks.Watching {
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	r.writePlain("→ Watching %s (Ctrl+C to stop)\n", dir)
	stats, err := watcher.Run(ctx, progress)
	close(progress)
	<-done

	r.writePlain("\nUploaded %d, failed %d\n", stats.Uploaded, stats.Failed)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
