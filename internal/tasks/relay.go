package tasks

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/services"
	"github.com/desertthunder/ridesync/internal/shared"
)

// UploadRelay hands artifacts to the Sink.
type UploadRelay struct {
	sink   services.Sink
	logger *log.Logger
}

// NewUploadRelay creates a relay for sink.
func NewUploadRelay(sink services.Sink, logger *log.Logger) *UploadRelay {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &UploadRelay{sink: sink, logger: shared.WithLogger(logger, "component", "relay")}
}

// Upload sends one artifact.
//
// It reports (true, nil) when the Sink accepted the file, (false, nil) when it was rejected
// and (false, err) when the attempt itself failed.
func (r *UploadRelay) Upload(ctx context.Context, a *models.Artifact) (bool, error) {
	if r.sink == nil {
		return false, fmt.Errorf("%w: upload sink not initialized", shared.ErrServiceUnavailable)
	}
	if a == nil {
		return false, fmt.Errorf("%w: no artifact", shared.ErrInvalidInput)
	}

	info, err := os.Stat(a.Path)
	if err != nil || info.Size() == 0 {
		r.logger.Warn("rejecting unreadable or empty file", "activity", a.SourceActivityID, "path", a.Path, "error", err)
		return false, nil
	}

	res, err := r.sink.Upload(ctx, a.Path)
	if err != nil {
		return false, fmt.Errorf("upload of activity %s failed: %w", a.SourceActivityID, err)
	}

	if !res.Accepted {
		r.logger.Warn("upload rejected", "activity", a.SourceActivityID, "status", res.Status, "reason", res.Message)
		return false, nil
	}
	if res.Duplicate {
		r.logger.Info("already on Garmin, treating as uploaded", "activity", a.SourceActivityID)
	} else {
		r.logger.Info("uploaded", "activity", a.SourceActivityID, "upload_id", res.UploadID)
	}
	return true, nil
}
