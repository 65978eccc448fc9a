package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/services"
	"github.com/desertthunder/ridesync/internal/shared"
)

const (
	defaultPageSize = 50
	defaultKind     = "VirtualRide"
)

// ActivityLister pages through the Source and keeps activities of one kind.
type ActivityLister struct {
	source   services.Source
	kind     string
	pageSize int
	limiter  *rate.Limiter
	now      func() time.Time
	logger   *log.Logger
}

// NewActivityLister creates a lister from the sync config section.
//
// Pages are spaced at least cfg.PageDelay() apart.
func NewActivityLister(source services.Source, cfg shared.SyncConfig, logger *log.Logger) *ActivityLister {
	kind := cfg.ActivityType
	if kind == "" {
		kind = defaultKind
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	limit := rate.Inf
	if d := cfg.PageDelay(); d > 0 {
		limit = rate.Every(d)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ActivityLister{
		source:   source,
		kind:     kind,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
		logger:   shared.WithLogger(logger, "component", "lister"),
	}
}

// ListCandidates returns the activities of the configured kind started within the last windowDays, in Source order.
func (l *ActivityLister) ListCandidates(ctx context.Context, windowDays int) ([]models.Activity, error) {
	if l.source == nil {
		return nil, fmt.Errorf("%w: activity source not initialized", shared.ErrServiceUnavailable)
	}
	if windowDays <= 0 {
		return nil, fmt.Errorf("%w: window must be at least one day, got %d", shared.ErrInvalidArgument, windowDays)
	}

	after := l.now().AddDate(0, 0, -windowDays)
	var (
		candidates []models.Activity
		seen       int
	)

	for page := 1; ; page++ {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		batch, err := l.source.ListPage(ctx, after, page, l.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break
		}

		seen += len(batch)
		for _, a := range batch {
			if a.Matches(l.kind) {
				candidates = append(candidates, a)
			}
		}
		l.logger.Debug("listed page", "page", page, "activities", len(batch))
	}

	l.logger.Info("listed activities", "after", after.Format(time.DateOnly), "total", seen, "kind", l.kind, "candidates", len(candidates))
	return candidates, nil
}
