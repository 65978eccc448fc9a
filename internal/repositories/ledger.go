package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/shared"
)

// LedgerRepository implements [Ledger] on SQLite.
type LedgerRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewLedgerRepository creates a new LedgerRepository with the given database connection
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db, now: time.Now}
}

// Init applies the schema migrations. Existing rows are untouched.
func (r *LedgerRepository) Init(ctx context.Context) error {
	if err := shared.RunMigrations(r.db); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrLedger, err)
	}
	return nil
}

// IsMigrated reports whether id has a ledger row.
func (r *LedgerRepository) IsMigrated(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM sync_ledger WHERE source_activity_id = ?)", id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: failed to look up %s: %v", shared.ErrLedger, id, err)
	}
	return exists, nil
}

// MarkMigrated records id. Marking an id that is already present is a no-op.
func (r *LedgerRepository) MarkMigrated(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty activity id", shared.ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sync_ledger (source_activity_id, migrated_at) VALUES (?, ?)",
		id, r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to mark %s: %v", shared.ErrLedger, id, err)
	}
	return nil
}

// Get returns the ledger row for id or [ErrRecordNotFound].
func (r *LedgerRepository) Get(ctx context.Context, id string) (*models.SyncRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT source_activity_id, migrated_at FROM sync_ledger WHERE source_activity_id = ?", id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrLedger, err)
	}
	return rec, nil
}

// List returns up to limit rows, most recently migrated first. A non-positive limit returns every row.
func (r *LedgerRepository) List(ctx context.Context, limit int) ([]models.SyncRecord, error) {
	query := "SELECT source_activity_id, migrated_at FROM sync_ledger ORDER BY migrated_at DESC, source_activity_id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list ledger: %v", shared.ErrLedger, err)
	}
	defer rows.Close()

	var records []models.SyncRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrLedger, err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Count returns the number of ledger rows.
func (r *LedgerRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_ledger").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count ledger: %v", shared.ErrLedger, err)
	}
	return n, nil
}

func scanRecord(s scanner) (*models.SyncRecord, error) {
	var rec models.SyncRecord
	if err := s.Scan(&rec.SourceActivityID, &rec.MigratedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
