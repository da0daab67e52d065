package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] brings the ledger to version i+1. Statements must be idempotent.
var migrations = []string{
	schemaSQL,
}

var schemaVersion = len(migrations)

func migrate(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// The metadata table lives in the first migration; create it up front so
	// the version can be read on an empty file.
	if _, err = tx.ExecContext(ctx, migrations[0]); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}

	current, err := ledgerVersion(ctx, tx)
	if err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("ledger schema version %d is newer than supported %d", current, schemaVersion)
	}

	for v := max(current, 1); v < schemaVersion; v++ {
		if _, err = tx.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("migrate ledger to version %d: %w", v+1, err)
		}
	}
	if current != schemaVersion {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO metadata(key, value) VALUES('schema_version', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			strconv.Itoa(schemaVersion)); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return tx.Commit()
}

// ledgerVersion returns 0 for a ledger that has never been stamped.
func ledgerVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var raw string
	err := tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return v, nil
}
