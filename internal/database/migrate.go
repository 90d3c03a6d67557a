package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/TobiSchelling/newsrank/internal/logging"
)

// ErrSchemaTooNew is returned when the store was written by a newer newsrank.
var ErrSchemaTooNew = errors.New("newsrank store schema is newer than this binary")

// storeVersion returns the schema version stamped in PRAGMA user_version.
// A fresh file reports 0.
func storeVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading newsrank schema version: %w", err)
	}
	return v, nil
}

// upgradeSchema runs every pending step in migrations, oldest first.
func upgradeSchema(conn *sql.DB) error {
	from, err := storeVersion(conn)
	if err != nil {
		return err
	}
	to := latestVersion()
	switch {
	case from > to:
		return fmt.Errorf("%w: store at v%d, binary supports up to v%d", ErrSchemaTooNew, from, to)
	case from == to:
		return nil
	}

	for _, step := range migrations {
		if step.Version > from {
			if err := applyStep(conn, step); err != nil {
				return err
			}
		}
	}
	logging.Info().Int("from", from).Int("to", to).Msg("newsrank store upgraded")
	return nil
}

// applyStep runs one step's DDL in a transaction and then stamps its
// version. modernc/sqlite ignores user_version writes inside a transaction,
// so the stamp follows the commit; steps use IF NOT EXISTS and re-run safely.
func applyStep(conn *sql.DB, step Migration) error {
	logging.Debug().Int("version", step.Version).Str("step", step.Description).Msg("upgrading newsrank store")

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("schema v%d: starting: %w", step.Version, err)
	}
	if err := step.Up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("schema v%d %q: %w", step.Version, step.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("schema v%d: committing: %w", step.Version, err)
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", step.Version)); err != nil {
		return fmt.Errorf("schema v%d: stamping version: %w", step.Version, err)
	}
	return nil
}
