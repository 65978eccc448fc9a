package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("counts uploads by outcome", func(t *testing.T) {
		m := NewMetrics()
		m.RecordUpload(OutcomeAccepted)
		m.RecordUpload(OutcomeAccepted)
		m.RecordUpload(OutcomeRejected)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.uploads.WithLabelValues(OutcomeAccepted)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues(OutcomeRejected)))
	})

	t.Run("records run status and watermark", func(t *testing.T) {
		m := NewMetrics()
		finished := time.Unix(1_700_000_000, 0)
		m.RecordRun("completed", finished)
		m.RecordExtractionFailure()

		assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("completed")))
		assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.lastRun))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.extractionFailures))
	})

	t.Run("nil metrics is a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.RecordRun("failed", time.Now())
			m.RecordUpload(OutcomeError)
			m.RecordExtractionFailure()
		})
		assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
		assert.Nil(t, m.Registry())
	})

	t.Run("writes textfile", func(t *testing.T) {
		m := NewMetrics()
		m.RecordRun("aborted", time.Now())
		path := filepath.Join(t.TempDir(), "textfile", "ridesync.prom")

		require.NoError(t, m.WriteTextfile(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `ridesync_runs_total{status="aborted"} 1`)
		assert.Contains(t, string(data), "ridesync_last_run_timestamp_seconds")
	})

	t.Run("empty path skips writing", func(t *testing.T) {
		assert.NoError(t, NewMetrics().WriteTextfile(""))
	})
}
