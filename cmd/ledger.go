package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ridesync/internal/formatter"
	"github.com/desertthunder/ridesync/internal/repositories"
	"github.com/desertthunder/ridesync/internal/shared"
)

func activityArg(cmd *cli.Command) (string, error) {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return "", fmt.Errorf("%w: activity id", shared.ErrMissingArgument)
	}
	return id, nil
}

// LedgerList prints the most recent ledger records.
func (r *Runner) LedgerList(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(ctx); err != nil {
		return err
	}

	records, err := r.ledger.List(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		data, err := formatter.LedgerToJSON(records)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", data)
	}

	text, err := formatter.LedgerToText(records)
	if err != nil {
		return err
	}
	return r.writePlain("%s", text)
}

// LedgerCheck reports whether an activity has been migrated.
func (r *Runner) LedgerCheck(ctx context.Context, cmd *cli.Command) error {
	id, err := activityArg(cmd)
	if err != nil {
		return err
	}
	if err := r.openStore(ctx); err != nil {
		return err
	}

	rec, err := r.ledger.Get(ctx, id)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return r.writePlain("✗ %s has not been migrated\n", id)
	}
	if err != nil {
		return err
	}
	return r.writePlain("✓ %s migrated %s\n", id, rec.MigratedAt.Local().Format(time.DateTime))
}

// LedgerMark records an activity by hand. Marking an activity twice keeps the first timestamp.
func (r *Runner) LedgerMark(ctx context.Context, cmd *cli.Command) error {
	id, err := activityArg(cmd)
	if err != nil {
		return err
	}
	if err := r.openStore(ctx); err != nil {
		return err
	}

	if err := r.ledger.MarkMigrated(ctx, id); err != nil {
		return err
	}
	r.logger.Info("marked activity as migrated", "activity", id)
	return r.writePlain("✓ %s recorded in the ledger\n", id)
}

// LedgerExport writes every ledger record in the requested format.
func (r *Runner) LedgerExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.openStore(ctx); err != nil {
		return err
	}

	records, err := r.ledger.List(ctx, 0)
	if err != nil {
		return err
	}

	path, err := formatter.WriteLedgerExport(records, format, cmd.String("output"))
	if err != nil {
		return err
	}
	r.logger.Info("ledger exported", "path", path, "records", len(records), "format", format)
	return r.writePlain("✓ Exported %d records to %s\n", len(records), path)
}
