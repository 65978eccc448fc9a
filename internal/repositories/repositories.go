// package repositories provides persistence layer implementations for the sync pipeline.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/ridesync/internal/models"
)

var ErrRecordNotFound = errors.New("record not found")

// Ledger is the durable record of migrated activities.
type Ledger interface {
	Init(ctx context.Context) error
	IsMigrated(ctx context.Context, id string) (bool, error)
	MarkMigrated(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.SyncRecord, error)
	List(ctx context.Context, limit int) ([]models.SyncRecord, error)
	Count(ctx context.Context) (int, error)
}

// NextSequence returns the next sequence number for table inside tx.
//
// Sequence numbers give runs a human-readable ordering (run #42) independent of their UUIDs.
func NextSequence(ctx context.Context, tx *sql.Tx, table string) (int, error) {
	var sequence int
	query := fmt.Sprintf("SELECT COALESCE(MAX(sequence), 0) + 1 FROM %s", table)
	if err := tx.QueryRowContext(ctx, query).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}
	return sequence, nil
}

type scanner interface {
	Scan(dest ...any) error
}
