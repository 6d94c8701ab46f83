package migrations

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
)

func TestEnsureCurrent_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := EnsureCurrent(db); err != nil {
		t.Fatalf("EnsureCurrent() failed: %v", err)
	}

	// Verify tables were created
	tables := []string{"addresses_data", "addresses_mirror", "addresses_tombstones", "sync_rounds", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}

	latest, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	version, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != latest || dirty {
		t.Errorf("Version() = (%d, %v), want (%d, false)", version, dirty, latest)
	}
}

func TestEnsureCurrent_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := EnsureCurrent(db); err != nil {
		t.Fatalf("First EnsureCurrent() failed: %v", err)
	}
	if err := EnsureCurrent(db); err != nil {
		t.Errorf("Second EnsureCurrent() failed: %v (should be idempotent)", err)
	}
	if err := CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after double migration returned error: %v", err)
	}
}

func TestCheckStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	err := CheckStatus(db)
	if !errors.Is(err, ErrNeedsMigration) {
		t.Errorf("CheckStatus() error = %v, want ErrNeedsMigration", err)
	}
}

func TestEnsureCurrent_TooNew(t *testing.T) {
	db := openTestDB(t)

	if err := EnsureCurrent(db); err != nil {
		t.Fatalf("EnsureCurrent() failed: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_migrations SET version = 99"); err != nil {
		t.Fatalf("bumping version: %v", err)
	}

	before, err := DumpSchema(db)
	if err != nil {
		t.Fatalf("DumpSchema() error = %v", err)
	}

	err = EnsureCurrent(db)
	if !errors.Is(err, ErrTooNew) {
		t.Fatalf("EnsureCurrent() error = %v, want ErrTooNew", err)
	}
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) || schemaErr.Version != 99 {
		t.Errorf("EnsureCurrent() error = %#v, want SchemaError with Version 99", err)
	}

	after, err := DumpSchema(db)
	if err != nil {
		t.Fatalf("DumpSchema() error = %v", err)
	}
	if before != after {
		t.Error("schema changed after ErrTooNew")
	}
	version, _, err := Version(db)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != 99 {
		t.Errorf("Version() = %d, want 99 (untouched)", version)
	}

	if err := CheckStatus(db); !errors.Is(err, ErrTooNew) {
		t.Errorf("CheckStatus() error = %v, want ErrTooNew", err)
	}
}

func TestEnsureCurrent_MigrationFailed(t *testing.T) {
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"files/1_first.up.sql":  {Data: []byte("CREATE TABLE IF NOT EXISTS first (id INTEGER);")},
		"files/2_broken.up.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS second (id INTEGER); THIS IS NOT SQL;")},
	}

	err := ensureCurrent(db, fsys, "files")
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("ensureCurrent() error = %v, want ErrMigrationFailed", err)
	}

	var version uint
	var dirty bool
	if err := db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty); err != nil {
		t.Fatalf("reading marker: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("marker = (%d, %v), want (1, false)", version, dirty)
	}

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='second'").Scan(&name)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("table from failed step exists (err = %v), want rolled back", err)
	}
}

func TestEnsureCurrent_RecoversDirtyMarker(t *testing.T) {
	db := openTestDB(t)

	if err := EnsureCurrent(db); err != nil {
		t.Fatalf("EnsureCurrent() failed: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_migrations SET dirty = 1"); err != nil {
		t.Fatalf("marking dirty: %v", err)
	}

	if err := EnsureCurrent(db); err != nil {
		t.Fatalf("EnsureCurrent() on dirty database error = %v", err)
	}
	if err := CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after recovery = %v", err)
	}
}

func TestSchema_LocalAndTombstoneExclusive(t *testing.T) {
	db := openTestDB(t)

	if err := EnsureCurrent(db); err != nil {
		t.Fatalf("EnsureCurrent() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO addresses_data (guid, street_address, country, time_created, time_last_used, time_last_modified)
		VALUES ('guid-1', '1 Main St', 'US', 0, 0, 0)`)
	if err != nil {
		t.Fatalf("Failed to insert address: %v", err)
	}

	_, err = db.Exec("INSERT INTO addresses_tombstones (guid, time_deleted) VALUES ('guid-1', 0)")
	if err == nil {
		t.Error("Expected tombstone insert to fail while a local row exists")
	}
}

func TestDumpSchema(t *testing.T) {
	db := openTestDB(t)

	if err := EnsureCurrent(db); err != nil {
		t.Fatalf("EnsureCurrent() failed: %v", err)
	}

	schema, err := DumpSchema(db)
	if err != nil {
		t.Fatalf("DumpSchema() error = %v", err)
	}
	for _, want := range []string{"CREATE TABLE addresses_data", "addresses_data_identity_idx", "addresses_tombstones_afterinsert_trigger"} {
		if !strings.Contains(schema, want) {
			t.Errorf("DumpSchema() missing %q", want)
		}
	}
	if strings.Contains(schema, "schema_migrations") {
		t.Error("DumpSchema() includes migration bookkeeping table")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return db
}
