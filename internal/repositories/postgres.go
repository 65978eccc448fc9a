package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/shared"
)

// PostgresLedger implements [Ledger] on a pgx pool, for runs that share a ledger across hosts.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger wraps an existing pool.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// OpenPostgresLedger connects to dsn and verifies the connection.
func OpenPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: database.dsn is required for postgres", shared.ErrInvalidConfig)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	cfg.MaxConns = 2
	cfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pool: %v", shared.ErrLedger, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping postgres: %v", shared.ErrLedger, err)
	}
	return &PostgresLedger{pool: pool}, nil
}

// Close releases the pool.
func (l *PostgresLedger) Close() {
	l.pool.Close()
}

// Init creates the ledger table if it is missing.
func (l *PostgresLedger) Init(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sync_ledger (
			source_activity_id TEXT PRIMARY KEY,
			migrated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("%w: failed to create ledger: %v", shared.ErrLedger, err)
	}
	return nil
}

// IsMigrated reports whether id has a ledger row.
func (l *PostgresLedger) IsMigrated(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM sync_ledger WHERE source_activity_id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: failed to look up %s: %v", shared.ErrLedger, id, err)
	}
	return exists, nil
}

// MarkMigrated records id. Marking an id that is already present is a no-op.
func (l *PostgresLedger) MarkMigrated(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty activity id", shared.ErrInvalidInput)
	}
	_, err := l.pool.Exec(ctx,
		"INSERT INTO sync_ledger (source_activity_id, migrated_at) VALUES ($1, now()) ON CONFLICT (source_activity_id) DO NOTHING",
		id,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to mark %s: %v", shared.ErrLedger, id, err)
	}
	return nil
}

// Get returns the ledger row for id or [ErrRecordNotFound].
func (l *PostgresLedger) Get(ctx context.Context, id string) (*models.SyncRecord, error) {
	var rec models.SyncRecord
	err := l.pool.QueryRow(ctx,
		"SELECT source_activity_id, migrated_at FROM sync_ledger WHERE source_activity_id = $1", id,
	).Scan(&rec.SourceActivityID, &rec.MigratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrLedger, err)
	}
	return &rec, nil
}

// List returns up to limit rows, most recently migrated first.
func (l *PostgresLedger) List(ctx context.Context, limit int) ([]models.SyncRecord, error) {
	query := "SELECT source_activity_id, migrated_at FROM sync_ledger ORDER BY migrated_at DESC, source_activity_id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list ledger: %v", shared.ErrLedger, err)
	}
	defer rows.Close()

	var records []models.SyncRecord
	for rows.Next() {
		var rec models.SyncRecord
		if err := rows.Scan(&rec.SourceActivityID, &rec.MigratedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrLedger, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of ledger rows.
func (l *PostgresLedger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sync_ledger").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count ledger: %v", shared.ErrLedger, err)
	}
	return n, nil
}
