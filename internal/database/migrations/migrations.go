package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

const migrationDir = "files"

var (
	// ErrTooNew means the database was written by a newer binary. The store
	// refuses to open rather than risk corrupting data it does not understand.
	ErrTooNew = errors.New("database schema is newer than this binary")

	// ErrMigrationFailed means a migration step errored. The version marker is
	// left at the last version that applied cleanly.
	ErrMigrationFailed = errors.New("database migration failed")

	// ErrNeedsMigration is reported by CheckStatus for a database that is
	// behind or has never been migrated.
	ErrNeedsMigration = errors.New("database schema needs migration")
)

// SchemaError describes a schema version problem. Kind is one of the
// sentinel errors above so callers can use errors.Is.
type SchemaError struct {
	Kind    error
	Version uint
	Latest  uint
	Err     error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("%v (database version %d, latest %d)", e.Kind, e.Version, e.Latest)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Is(target error) bool { return target == e.Kind }

func (e *SchemaError) Unwrap() error { return e.Err }

// EnsureCurrent brings the database to the latest embedded schema version.
//
// A database already ahead of the binary fails with ErrTooNew before any
// write. A dirty marker left by an interrupted step is rolled back one
// version and the step is re-run; every migration is written to be safe to
// repeat. Each step runs in its own transaction, and if one fails the marker
// is forced back to the last clean version and ErrMigrationFailed is returned.
func EnsureCurrent(db *sql.DB) error {
	return ensureCurrent(db, migrationFiles, migrationDir)
}

func ensureCurrent(db *sql.DB, fsys fs.FS, dir string) error {
	latest, err := latestVersion(fsys, dir)
	if err != nil {
		return fmt.Errorf("determining latest version: %w", err)
	}

	m, err := newMigrate(db, fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Note: We don't close m here because it would close the db connection
	// The caller owns the db and is responsible for closing it

	version, dirty, err := currentVersion(m)
	if err != nil {
		return err
	}

	if version > latest {
		return &SchemaError{Kind: ErrTooNew, Version: version, Latest: latest}
	}

	if dirty {
		prev, err := previousVersion(fsys, dir, version)
		if err != nil {
			return fmt.Errorf("finding version before dirty version %d: %w", version, err)
		}
		if err := m.Force(prev); err != nil {
			return fmt.Errorf("clearing dirty version %d: %w", version, err)
		}
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		failed, failedDirty, verr := currentVersion(m)
		if verr != nil {
			return &SchemaError{Kind: ErrMigrationFailed, Version: failed, Latest: latest, Err: errors.Join(err, verr)}
		}
		if failedDirty {
			good, perr := previousVersion(fsys, dir, failed)
			if perr == nil {
				perr = m.Force(good)
			}
			if perr != nil {
				err = errors.Join(err, fmt.Errorf("restoring version marker: %w", perr))
			}
		}
		return &SchemaError{Kind: ErrMigrationFailed, Version: failed, Latest: latest, Err: err}
	}

	return nil
}

// CheckStatus verifies that the database schema is exactly at the latest
// version without changing anything.
func CheckStatus(db *sql.DB) error {
	latest, err := latestVersion(migrationFiles, migrationDir)
	if err != nil {
		return fmt.Errorf("determining latest version: %w", err)
	}

	m, err := newMigrate(db, migrationFiles, migrationDir)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := currentVersion(m)
	if err != nil {
		return err
	}

	switch {
	case dirty:
		return &SchemaError{Kind: ErrMigrationFailed, Version: version, Latest: latest,
			Err: fmt.Errorf("version %d is dirty", version)}
	case version > latest:
		return &SchemaError{Kind: ErrTooNew, Version: version, Latest: latest}
	case version < latest:
		return &SchemaError{Kind: ErrNeedsMigration, Version: version, Latest: latest}
	}
	return nil
}

// Version returns the persisted schema version (0 for a fresh database).
func Version(db *sql.DB) (uint, bool, error) {
	m, err := newMigrate(db, migrationFiles, migrationDir)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return currentVersion(m)
}

// LatestVersion returns the highest embedded migration version.
func LatestVersion() (uint, error) {
	return latestVersion(migrationFiles, migrationDir)
}

// DumpSchema returns the CREATE statements for every table, index and
// trigger, excluding SQLite internals and the migration bookkeeping table.
func DumpSchema(db *sql.DB) (string, error) {
	query := `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index', 'trigger')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY
		  CASE type
		    WHEN 'table' THEN 1
		    WHEN 'index' THEN 2
		    WHEN 'trigger' THEN 3
		  END,
		  name
	`

	rows, err := db.Query(query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scan failed: %w", err)
		}
		b.WriteString(stmt)
		b.WriteString("\n\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows error: %w", err)
	}
	return b.String(), nil
}

// newMigrate creates a new migrate instance for the given database.
func newMigrate(db *sql.DB, fsys fs.FS, dir string) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	// Wraps *sql.DB with SQLite-specific migration logic; each step runs in a transaction.
	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// currentVersion reads the marker, mapping "never migrated" to version 0.
func currentVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get database version: %w", err)
	}
	return version, dirty, nil
}

// previousVersion returns the migration before v, or -1 (no version) when v
// is the first one. The int return matches migrate.Force.
func previousVersion(fsys fs.FS, dir string, v uint) (int, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()

	prev, err := src.Prev(v)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return -1, nil
		}
		return 0, err
	}
	return int(prev), nil
}

// latestVersion returns the highest version number available in the source.
func latestVersion(fsys fs.FS, dir string) (uint, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func lastVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}

	latestVersion := version
	for {
		nextVersion, err := src.Next(latestVersion)
		if err != nil {
			// Any error from Next() means we've reached the end
			break
		}
		latestVersion = nextVersion
	}

	return latestVersion, nil
}
