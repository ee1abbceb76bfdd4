package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Migration is one forward step of the snippet schema. There are no down
// migrations; a database is only ever moved forward.
type Migration struct {
	Version     int
	Description string
	Up          string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with snippets",
		Up:          migrationV1Up,
	},
	{
		Version:     2,
		Description: "Add enabled flag to snippets",
		Up:          migrationV2Up,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS snippets (
    abbreviation    TEXT PRIMARY KEY,
    expansion       TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snippets_updated ON snippets(updated_at);
`

const migrationV2Up = `
ALTER TABLE snippets ADD COLUMN enabled INTEGER NOT NULL DEFAULT 1;
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// ErrSchemaTooNew is returned when the database was migrated by a newer
// release than this one.
var ErrSchemaTooNew = errors.New("store: database schema is newer than this release")

// snippetColumns are the columns the queries in this package rely on.
var snippetColumns = []string{
	"abbreviation", "expansion", "description", "enabled", "created_at", "updated_at",
}

// checkSchema verifies an opened database after migration: its version must
// be one this release knows and the snippets table must carry every column.
func checkSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}
	if latest := migrations[len(migrations)-1].Version; version > latest {
		return fmt.Errorf("%w: version %d, newest known %d", ErrSchemaTooNew, version, latest)
	}

	rows, err := db.Query("SELECT name FROM pragma_table_info('snippets')")
	if err != nil {
		return fmt.Errorf("inspect snippets table: %w", err)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("inspect snippets table: %w", err)
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect snippets table: %w", err)
	}

	var missing []string
	for _, col := range snippetColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("snippets table is missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
}

// SchemaInfo describes the database behind a Store.
type SchemaInfo struct {
	Version  int
	Latest   int
	Applied  []AppliedMigration
	Snippets int
	Enabled  int
}

// SchemaInfo reports the schema version, the applied migrations and the
// snippet counts.
func (s *Store) SchemaInfo() (SchemaInfo, error) {
	info := SchemaInfo{Latest: migrations[len(migrations)-1].Version}

	rows, err := s.db.Query("SELECT version, applied_at, COALESCE(description, '') FROM schema_migrations ORDER BY version")
	if err != nil {
		return info, fmt.Errorf("read migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var am AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&am.Version, &appliedAt, &am.Description); err != nil {
			return info, fmt.Errorf("scan migration: %w", err)
		}
		am.AppliedAt = time.Unix(0, appliedAt)
		info.Applied = append(info.Applied, am)
		info.Version = max(info.Version, am.Version)
	}
	if err := rows.Err(); err != nil {
		return info, fmt.Errorf("read migrations: %w", err)
	}

	err = s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(enabled), 0) FROM snippets").Scan(&info.Snippets, &info.Enabled)
	if err != nil {
		return info, fmt.Errorf("count snippets: %w", err)
	}
	return info, nil
}
