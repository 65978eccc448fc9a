package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/shared"
)

// WatchExtensions are the activity file types the watcher picks up.
var WatchExtensions = []string{".fit", ".tcx", ".gpx"}

const defaultSettle = 2 * time.Second

// WatchOptions configures a [Watcher].
type WatchOptions struct {
	// Settle is how long a file must go without writes before it is uploaded.
	Settle time.Duration
	// Remove deletes files the Sink accepted.
	Remove bool
	// Existing uploads files already in the directory at start.
	Existing bool
}

// WatchStats counts what a watcher has done.
type WatchStats struct {
	Uploaded int
	Failed   int
}

// Watcher uploads activity files dropped into a directory.
type Watcher struct {
	dir      string
	uploader Uploader
	opts     WatchOptions
	logger   *log.Logger
	pending  map[string]time.Time
	stats    WatchStats
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, uploader Uploader, opts WatchOptions, logger *log.Logger) *Watcher {
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Watcher{
		dir:      dir,
		uploader: uploader,
		opts:     opts,
		logger:   shared.WithLogger(logger, "component", "watch", "dir", dir),
		pending:  make(map[string]time.Time),
	}
}

// Run watches until ctx is cancelled and returns the counts.
func (w *Watcher) Run(ctx context.Context, progress chan<- ProgressUpdate) (WatchStats, error) {
	if w.uploader == nil {
		return w.stats, fmt.Errorf("%w: upload sink not initialized", shared.ErrServiceUnavailable)
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return w.stats, fmt.Errorf("failed to create watch directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w.stats, fmt.Errorf("failed to start watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return w.stats, fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	if w.opts.Existing {
		entries, err := os.ReadDir(w.dir)
		if err != nil {
			return w.stats, fmt.Errorf("failed to read %s: %w", w.dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				w.touch(filepath.Join(w.dir, e.Name()), time.Time{})
			}
		}
	}

	w.logger.Info("watching for activity files", "extensions", strings.Join(WatchExtensions, ","))
	ticker := time.NewTicker(w.opts.Settle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped", "uploaded", w.stats.Uploaded, "failed", w.stats.Failed)
			return w.stats, nil
		case ev, ok := <-fw.Events:
			if !ok {
				return w.stats, nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.touch(ev.Name, time.Now())
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				delete(w.pending, ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return w.stats, nil
			}
			w.logger.Warn("watch error", "error", err)
		case now := <-ticker.C:
			w.flush(ctx, now, progress)
		}
	}
}

// touch marks path as changed at t.
func (w *Watcher) touch(path string, t time.Time) {
	if !isActivityFile(path) {
		return
	}
	w.pending[path] = t
}

// flush uploads every pending file that has been quiet for the settle period.
func (w *Watcher) flush(ctx context.Context, now time.Time, progress chan<- ProgressUpdate) {
	ready := make([]string, 0, len(w.pending))
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.opts.Settle {
			ready = append(ready, path)
		}
	}
	slices.Sort(ready)

	for _, path := range ready {
		delete(w.pending, path)
		ok := w.upload(ctx, path)
		if ok {
			w.stats.Uploaded++
		} else {
			w.stats.Failed++
		}
		sendProgress(progress, watchedUpdate(w.stats.Uploaded+w.stats.Failed, path, ok))
	}
}

func (w *Watcher) upload(ctx context.Context, path string) bool {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	artifact, err := models.NewArtifact(id, path)
	if err != nil {
		w.logger.Warn("skipping file", "path", path, "error", err)
		return false
	}

	ok, err := w.uploader.Upload(ctx, artifact)
	if err != nil {
		w.logger.Error("upload failed", "path", path, "error", err)
		return false
	}
	if !ok {
		return false
	}

	if w.opts.Remove {
		if err := os.Remove(path); err != nil {
			w.logger.Warn("failed to remove uploaded file", "path", path, "error", err)
		}
	}
	return true
}

func isActivityFile(path string) bool {
	return slices.Contains(WatchExtensions, strings.ToLower(filepath.Ext(path)))
}
