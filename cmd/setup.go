package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ridesync/internal/shared"
)

// ConfigInit writes the example configuration to the --config path.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)

	r.writePlain("✓ Wrote %s\n", r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Fill in credentials.strava (API app and web login)\n")
	r.writePlain("2. Run 'ridesync auth strava' and 'ridesync auth garmin --curl-file <file>'\n")
	r.writePlain("3. Run 'ridesync sync --dry-run'\n")
	return nil
}

// ConfigValidate checks the loaded configuration.
func (r *Runner) ConfigValidate(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}
	r.writePlain("✓ %s is valid\n", r.configPath)
	return nil
}

// openDatabase opens the SQLite database without touching its schema.
func (r *Runner) openDatabase() (*sql.DB, error) {
	cfg := r.config.Database
	r.logger.Debug("opening database", "path", cfg.Path)

	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)
	return db, nil
}

// DBMigrate applies pending migrations, including the Postgres ledger table when configured.
func (r *Runner) DBMigrate(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(ctx); err != nil {
		return err
	}
	if err := r.ledger.Init(ctx); err != nil {
		return err
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database is up to date\n")
}

// DBStatus lists the known migrations and when each was applied.
func (r *Runner) DBStatus(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}

	for _, m := range status {
		applied := "pending"
		if m.Applied {
			applied = "applied " + m.AppliedAt.Local().Format(time.DateTime)
		}
		r.writePlain("%04d %-16s %s\n", m.Version, m.Name, applied)
	}
	return nil
}

// DBRollback reverts the latest migration.
func (r *Runner) DBRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	r.logger.Warn("rolled back latest migration", "path", r.config.Database.Path)
	return r.writePlain("✓ Rolled back the latest migration\n")
}
