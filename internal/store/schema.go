package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var baseSchema string

// migrations[i] moves the database from user_version i to i+1. Append only.
var migrations = []string{
	baseSchema,
}

// ErrSchemaTooNew is returned when the database was written by a newer
// wsideid than this binary.
var ErrSchemaTooNew = errors.New("database schema is newer than this binary")

// migrate applies pending migrations, tracking progress in PRAGMA user_version.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("%w: database version %d, supported %d", ErrSchemaTooNew, version, len(migrations))
	}
	for next := version; next < len(migrations); next++ {
		if err := s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[next]); err != nil {
				return err
			}
			// PRAGMA does not accept bound parameters.
			_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", next+1))
			return err
		}); err != nil {
			return fmt.Errorf("apply schema migration %d: %w", next+1, err)
		}
	}
	return nil
}
