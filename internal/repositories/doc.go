// Package repositories persists the sync ledger and the run history.
//
// Key Implementations:
//   - [LedgerRepository] : SQLite ledger of migrated activity ids
//   - [PostgresLedger] : the same ledger on a pgx connection pool
//   - [RunRepository] : history of sync invocations
//
// Ledger writes are compare-and-insert (INSERT OR IGNORE / ON CONFLICT DO NOTHING),
// so marking an activity twice never fails and never creates a second row.
package repositories
