package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/ridesync/internal/extract"
	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/observability"
	"github.com/desertthunder/ridesync/internal/shared"
)

type mockLister struct {
	activities []models.Activity
	err        error
	calls      int
}

func (m *mockLister) ListCandidates(ctx context.Context, windowDays int) ([]models.Activity, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.activities, nil
}

type memoryLedger struct {
	mu      sync.Mutex
	records map[string]int
	initErr error
	lookErr error
	markErr error
}

func newMemoryLedger(ids ...string) *memoryLedger {
	l := &memoryLedger{records: map[string]int{}}
	for _, id := range ids {
		l.records[id] = 1
	}
	return l
}

func (l *memoryLedger) Init(ctx context.Context) error { return l.initErr }

func (l *memoryLedger) IsMigrated(ctx context.Context, id string) (bool, error) {
	if l.lookErr != nil {
		return false, l.lookErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[id] > 0, nil
}

func (l *memoryLedger) MarkMigrated(ctx context.Context, id string) error {
	if l.markErr != nil {
		return l.markErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[id]++
	return nil
}

// mockExtractor writes a file per activity into the request directory, except for ids in fail.
type mockExtractor struct {
	fail  map[string]bool
	err   error
	calls int
	seen  []string
	dir   string
}

func (m *mockExtractor) Extract(ctx context.Context, activities []models.Activity, req extract.Request) ([]*models.Artifact, error) {
	m.calls++
	m.dir = req.Dir
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*models.Artifact, len(activities))
	for i, a := range activities {
		m.seen = append(m.seen, a.ID)
		if m.fail[a.ID] {
			continue
		}
		path := filepath.Join(req.Dir, a.ID+".fit")
		if err := os.WriteFile(path, []byte(".FIT"+a.ID), 0644); err != nil {
			return nil, err
		}
		out[i] = &models.Artifact{SourceActivityID: a.ID, Path: path, Size: int64(4 + len(a.ID))}
	}
	return out, nil
}

type mockUploader struct {
	reject   map[string]bool
	errs     map[string]error
	uploaded []string
	present  []bool
}

func (m *mockUploader) Upload(ctx context.Context, a *models.Artifact) (bool, error) {
	m.uploaded = append(m.uploaded, a.SourceActivityID)
	_, err := os.Stat(a.Path)
	m.present = append(m.present, err == nil)
	if err := m.errs[a.SourceActivityID]; err != nil {
		return false, err
	}
	return !m.reject[a.SourceActivityID], nil
}

func rides(ids ...string) []models.Activity {
	out := make([]models.Activity, len(ids))
	for i, id := range ids {
		out[i] = models.Activity{ID: id, Name: "Ride " + id, Kind: "VirtualRide"}
	}
	return out
}

type fixture struct {
	lister    *mockLister
	ledger    *memoryLedger
	extractor *mockExtractor
	uploader  *mockUploader
	metrics   *observability.Metrics
	engine    *SyncEngine
}

func newFixture(t *testing.T, activities []models.Activity, migrated ...string) *fixture {
	t.Helper()
	f := &fixture{
		lister:    &mockLister{activities: activities},
		ledger:    newMemoryLedger(migrated...),
		extractor: &mockExtractor{fail: map[string]bool{}},
		uploader:  &mockUploader{reject: map[string]bool{}, errs: map[string]error{}},
		metrics:   observability.NewMetrics(),
	}
	f.engine = NewSyncEngine(f.lister, f.ledger, f.extractor, f.uploader, f.metrics, nil)
	return f
}

func (f *fixture) run(t *testing.T, opts SyncOptions) (*SyncResult, error) {
	t.Helper()
	if opts.WindowDays == 0 {
		opts.WindowDays = 7
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = t.TempDir()
	}
	return f.engine.RunSync(context.Background(), opts, nil)
}

func TestSyncEngine_RunSync(t *testing.T) {
	t.Run("uploads every pending activity and marks it", func(t *testing.T) {
		f := newFixture(t, rides("1", "2", "3"))

		result, err := f.run(t, SyncOptions{})
		if err != nil {
			t.Fatalf("RunSync() error = %v", err)
		}
		if result.Uploaded != 3 || result.Failed != 0 {
			t.Errorf("got uploaded=%d failed=%d, want 3/0", result.Uploaded, result.Failed)
		}
		for _, id := range []string{"1", "2", "3"} {
			if f.ledger.records[id] != 1 {
				t.Errorf("activity %s marked %d times, want 1", id, f.ledger.records[id])
			}
		}
		if result.Status(err) != models.RunCompleted {
			t.Errorf("status = %s, want completed", result.Status(err))
		}
	})

	t.Run("re-run is idempotent and launches no browser", func(t *testing.T) {
		f := newFixture(t, rides("1", "2"))
		if _, err := f.run(t, SyncOptions{}); err != nil {
			t.Fatalf("first run: %v", err)
		}

		result, err := f.run(t, SyncOptions{})
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if result.Uploaded != 0 || result.Failed != 0 || result.Skipped != 2 {
			t.Errorf("second run = %+v, want nothing to do", result)
		}
		if f.extractor.calls != 1 {
			t.Errorf("extractor called %d times, want 1", f.extractor.calls)
		}
		if len(f.uploader.uploaded) != 2 {
			t.Errorf("uploads = %v, want exactly two", f.uploader.uploaded)
		}
	})

	t.Run("already migrated activities are never exported", func(t *testing.T) {
		f := newFixture(t, rides("1", "2", "3"), "2")

		result, err := f.run(t, SyncOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(f.extractor.seen, []string{"1", "3"}) {
			t.Errorf("exported %v, want [1 3]", f.extractor.seen)
		}
		if result.Pending != 2 || result.Skipped != 1 {
			t.Errorf("pending=%d skipped=%d", result.Pending, result.Skipped)
		}
		if f.ledger.records["2"] != 1 {
			t.Errorf("existing record rewritten")
		}
	})

	t.Run("uploads happen in listing order", func(t *testing.T) {
		f := newFixture(t, rides("c", "a", "b"))

		if _, err := f.run(t, SyncOptions{}); err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(f.uploader.uploaded, []string{"c", "a", "b"}) {
			t.Errorf("upload order = %v", f.uploader.uploaded)
		}
	})

	t.Run("one failure does not stop the others", func(t *testing.T) {
		f := newFixture(t, rides("1", "2", "3", "4", "5"))
		f.extractor.fail["2"] = true
		f.uploader.reject["3"] = true
		f.uploader.errs["4"] = fmt.Errorf("%w: 503", shared.ErrAPIRequest)

		result, err := f.run(t, SyncOptions{})
		if err != nil {
			t.Fatalf("per-item failures must not be returned: %v", err)
		}
		if result.Uploaded != 2 || result.Failed != 3 {
			t.Errorf("got uploaded=%d failed=%d, want 2/3", result.Uploaded, result.Failed)
		}
		for id, want := range map[string]int{"1": 1, "2": 0, "3": 0, "4": 0, "5": 1} {
			if f.ledger.records[id] != want {
				t.Errorf("ledger[%s] = %d, want %d", id, f.ledger.records[id], want)
			}
		}

		outcomes := make([]string, len(result.Items))
		for i, item := range result.Items {
			outcomes[i] = item.Outcome
		}
		want := []string{OutcomeUploaded, OutcomeExportFailed, OutcomeRejected, OutcomeUploadError, OutcomeUploaded}
		if !slices.Equal(outcomes, want) {
			t.Errorf("outcomes = %v, want %v", outcomes, want)
		}
		if !errors.Is(result.Items[2].Err, shared.ErrUploadRejected) {
			t.Errorf("rejected item error = %v", result.Items[2].Err)
		}
		if result.Status(err) != models.RunFailed {
			t.Errorf("status = %s, want failed", result.Status(err))
		}
	})

	t.Run("login failure aborts with nothing counted", func(t *testing.T) {
		f := newFixture(t, rides("1", "2"))
		f.extractor.err = &extract.StepError{
			From:   extract.StatePasswordEntered,
			Target: extract.StateAuthenticated,
			Err:    context.DeadlineExceeded,
		}

		result, err := f.run(t, SyncOptions{})
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("error = %v, want ErrAuthFailed", err)
		}
		if !result.Aborted || result.Uploaded != 0 || result.Failed != 0 {
			t.Errorf("result = %+v, want aborted 0/0", result)
		}
		if len(f.uploader.uploaded) != 0 || len(f.ledger.records) != 0 {
			t.Errorf("no upload or ledger write expected")
		}
		if result.Status(err) != models.RunAborted {
			t.Errorf("status = %s, want aborted", result.Status(err))
		}
	})

	t.Run("dry run has no side effects", func(t *testing.T) {
		f := newFixture(t, rides("1", "2"))

		result, err := f.run(t, SyncOptions{DryRun: true})
		if err != nil {
			t.Fatal(err)
		}
		if result.Uploaded != 2 {
			t.Errorf("dry run counts as uploaded, got %d", result.Uploaded)
		}
		if len(f.uploader.uploaded) != 0 {
			t.Errorf("dry run uploaded %v", f.uploader.uploaded)
		}
		if len(f.ledger.records) != 0 {
			t.Errorf("dry run wrote ledger %v", f.ledger.records)
		}
	})

	t.Run("empty listing does nothing", func(t *testing.T) {
		f := newFixture(t, nil)

		result, err := f.run(t, SyncOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if result.Uploaded != 0 || result.Failed != 0 || f.extractor.calls != 0 {
			t.Errorf("expected a no-op run, got %+v (extract calls %d)", result, f.extractor.calls)
		}
	})

	t.Run("limit caps pending activities", func(t *testing.T) {
		f := newFixture(t, rides("1", "2", "3", "4"))

		result, err := f.run(t, SyncOptions{Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if result.Pending != 2 || !slices.Equal(f.uploader.uploaded, []string{"1", "2"}) {
			t.Errorf("pending=%d uploaded=%v", result.Pending, f.uploader.uploaded)
		}
	})

	t.Run("scratch directory and artifacts are removed", func(t *testing.T) {
		f := newFixture(t, rides("1", "2"))
		f.uploader.reject["2"] = true

		if _, err := f.run(t, SyncOptions{}); err != nil {
			t.Fatal(err)
		}
		for i, present := range f.uploader.present {
			if !present {
				t.Errorf("artifact %d missing during upload", i)
			}
		}
		if _, err := os.Stat(f.extractor.dir); !os.IsNotExist(err) {
			t.Errorf("scratch dir %s still exists", f.extractor.dir)
		}
	})

	t.Run("ledger lookup failure is fatal", func(t *testing.T) {
		f := newFixture(t, rides("1"))
		f.ledger.lookErr = errors.New("database is locked")

		_, err := f.run(t, SyncOptions{})
		if !errors.Is(err, shared.ErrLedger) {
			t.Errorf("error = %v, want ErrLedger", err)
		}
		if f.extractor.calls != 0 {
			t.Errorf("extractor should not run")
		}
	})

	t.Run("ledger write failure is fatal", func(t *testing.T) {
		f := newFixture(t, rides("1", "2"))
		f.ledger.markErr = fmt.Errorf("%w: disk full", shared.ErrLedger)

		result, err := f.run(t, SyncOptions{})
		if !errors.Is(err, shared.ErrLedger) {
			t.Fatalf("error = %v, want ErrLedger", err)
		}
		if len(f.uploader.uploaded) != 1 || result.Uploaded != 0 {
			t.Errorf("run should stop after the first mark failure: uploads=%v result=%+v", f.uploader.uploaded, result)
		}
	})

	t.Run("ledger init failure is fatal", func(t *testing.T) {
		f := newFixture(t, rides("1"))
		f.ledger.initErr = errors.New("no such table")

		_, err := f.run(t, SyncOptions{})
		if !errors.Is(err, shared.ErrLedger) {
			t.Errorf("error = %v, want ErrLedger", err)
		}
		if f.lister.calls != 0 {
			t.Errorf("lister should not run")
		}
	})

	t.Run("lister failure is returned", func(t *testing.T) {
		f := newFixture(t, nil)
		f.lister.err = fmt.Errorf("%w: invalid_grant", shared.ErrRefreshFailed)

		result, err := f.run(t, SyncOptions{})
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("error = %v, want ErrRefreshFailed", err)
		}
		if result == nil || result.Status(err) != models.RunFailed {
			t.Errorf("expected failed result, got %+v", result)
		}
	})

	t.Run("missing dependency", func(t *testing.T) {
		engine := NewSyncEngine(nil, nil, nil, nil, nil, nil)
		_, err := engine.RunSync(context.Background(), SyncOptions{WindowDays: 1}, nil)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("error = %v, want ErrServiceUnavailable", err)
		}
	})

	t.Run("records metrics", func(t *testing.T) {
		f := newFixture(t, rides("1", "2"))
		f.extractor.fail["2"] = true

		if _, err := f.run(t, SyncOptions{}); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(t.TempDir(), "ridesync.prom")
		if err := f.metrics.WriteTextfile(path); err != nil {
			t.Fatal(err)
		}
		data, _ := os.ReadFile(path)
		for _, want := range []string{
			`ridesync_uploads_total{outcome="accepted"} 1`,
			`ridesync_extraction_failures_total 1`,
			`ridesync_runs_total{status="failed"} 1`,
		} {
			if !strings.Contains(string(data), want) {
				t.Errorf("metrics missing %q:\n%s", want, data)
			}
		}
	})

	t.Run("progress updates end with complete", func(t *testing.T) {
		f := newFixture(t, rides("1"))
		progress := make(chan ProgressUpdate, 32)

		_, err := f.engine.RunSync(context.Background(), SyncOptions{WindowDays: 7, ScratchDir: t.TempDir()}, progress)
		if err != nil {
			t.Fatal(err)
		}
		close(progress)

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if len(phases) == 0 || phases[0] != Listing || phases[len(phases)-1] != Complete {
			t.Errorf("phases = %v", phases)
		}
	})
}

func TestSyncResult_Run(t *testing.T) {
	r := &SyncResult{WindowDays: 7, Candidates: 3, Pending: 2, Uploaded: 1, Failed: 1}
	run := r.Run(nil)
	if run.Status != models.RunFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
	if run.Error != "" {
		t.Errorf("unexpected error text %q", run.Error)
	}

	run = (&SyncResult{Aborted: true}).Run(shared.ErrAuthFailed)
	if run.Status != models.RunAborted || run.Error == "" {
		t.Errorf("aborted run = %+v", run)
	}
}

func TestPhaseString(t *testing.T) {
	for phase, want := range map[Phase]string{Listing: "listing", Uploading: "uploading", Complete: "complete", Phase(99): ""} {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}
