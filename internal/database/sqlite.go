package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"addrstore/internal/addresses"
	"addrstore/internal/database/migrations"
	"addrstore/internal/model"
	"addrstore/internal/reconcile"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements addresses.Store on SQLite.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	clock addresses.Clock
	idgen addresses.IDGenerator

	// mu serialises writers. Each mutating call holds it for the whole
	// transaction; reads go straight to the pool.
	mu sync.Mutex
}

var _ addresses.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path and migrates it to the latest
// schema. path can be a file path or ":memory:".
// A nil clock or idgen selects the real implementation.
func NewSQLiteStore(path string, clock addresses.Clock, idgen addresses.IDGenerator) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	s, err := NewSQLiteStoreFromDB(db, clock, idgen)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.path = path
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing connection and migrates it.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB, clock addresses.Clock, idgen addresses.IDGenerator) (*SQLiteStore, error) {
	if err := migrations.EnsureCurrent(db); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if clock == nil {
		clock = addresses.RealClock{}
	}
	if idgen == nil {
		idgen = addresses.UUIDGenerator{}
	}
	return &SQLiteStore{db: db, clock: clock, idgen: idgen}, nil
}

// OpenConnection opens and configures a SQLite connection without touching
// the schema. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		// Pragmas go in the DSN so every pooled connection gets them.
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (s *SQLiteStore) now() model.Timestamp {
	return model.TimestampFrom(s.clock.Now())
}

// write runs fn in a transaction while holding the write lock.
func (s *SQLiteStore) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// read runs fn in a transaction so multi-row reads see one snapshot.
func (s *SQLiteStore) read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(tx)
}

// Local row operations

func (s *SQLiteStore) InsertLocal(ctx context.Context, addr model.Address) (*model.LocalRecord, error) {
	if f := addr.MissingMandatory(); f != "" {
		return nil, addresses.InvalidField("", f)
	}

	now := s.now()
	rec := &model.LocalRecord{
		AddressRecord: model.AddressRecord{
			GUID:    s.idgen.New(),
			Address: addr.Clone(),
			Metadata: model.Metadata{
				TimeCreated:      now,
				TimeLastUsed:     now,
				TimeLastModified: now,
			},
		},
		ChangeCounter: 1,
	}
	if err := model.ValidateGUID(rec.GUID); err != nil {
		return nil, fmt.Errorf("allocating guid: %w", err)
	}

	err := s.write(ctx, func(tx *sql.Tx) error {
		return putLocal(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) UpdateLocal(ctx context.Context, guid string, patch model.Patch) (*model.LocalRecord, error) {
	for f := range patch {
		if !f.Valid() {
			return nil, &addresses.StoreError{Kind: addresses.ErrInvalidField, GUID: guid, Field: f,
				Err: fmt.Errorf("unknown address field %q", f)}
		}
	}

	var updated *model.LocalRecord
	err := s.write(ctx, func(tx *sql.Tx) error {
		cur, err := getLocal(ctx, tx, guid)
		if err != nil {
			return err
		}
		if cur == nil {
			return addresses.NotFound(guid)
		}

		addr := patch.Apply(cur.Address)
		if f := addr.MissingMandatory(); f != "" {
			return addresses.InvalidField(guid, f)
		}

		updated = cur.Clone()
		updated.Address = addr
		updated.TimeLastModified = max(cur.TimeLastModified, s.now())
		updated.ChangeCounter++
		return putLocal(ctx, tx, updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) DeleteLocal(ctx context.Context, guid string) (bool, error) {
	deleted := false
	err := s.write(ctx, func(tx *sql.Tx) error {
		cur, err := getLocal(ctx, tx, guid)
		if err != nil || cur == nil {
			return err
		}
		mirror, err := getMirror(ctx, tx, guid)
		if err != nil {
			return err
		}

		if err := deleteRow(ctx, tx, "addresses_data", guid); err != nil {
			return err
		}
		if mirror != nil {
			// The server has a copy; the deletion must be uploaded.
			if err := putTombstone(ctx, tx, model.Tombstone{GUID: guid, TimeDeleted: s.now()}); err != nil {
				return err
			}
		} else if err := deleteRow(ctx, tx, "addresses_tombstones", guid); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *SQLiteStore) Touch(ctx context.Context, guid string) (*model.LocalRecord, error) {
	var touched *model.LocalRecord
	err := s.write(ctx, func(tx *sql.Tx) error {
		cur, err := getLocal(ctx, tx, guid)
		if err != nil {
			return err
		}
		if cur == nil {
			return addresses.NotFound(guid)
		}
		touched = cur.Clone()
		touched.TimesUsed++
		touched.TimeLastUsed = max(cur.TimeLastUsed, s.now())
		return putLocal(ctx, tx, touched)
	})
	if err != nil {
		return nil, err
	}
	return touched, nil
}

// Lookups

func (s *SQLiteStore) GetLocal(ctx context.Context, guid string) (*model.LocalRecord, error) {
	return getLocal(ctx, s.db, guid)
}

func (s *SQLiteStore) GetMirror(ctx context.Context, guid string) (*model.AddressRecord, error) {
	return getMirror(ctx, s.db, guid)
}

func (s *SQLiteStore) GetTombstone(ctx context.Context, guid string) (*model.Tombstone, error) {
	return getTombstone(ctx, s.db, guid)
}

func (s *SQLiteStore) AllLocal(ctx context.Context) ([]*model.LocalRecord, error) {
	return listLocal(ctx, s.db, "")
}

func (s *SQLiteStore) AllUnsyncedLocal(ctx context.Context) ([]*model.LocalRecord, error) {
	return listLocal(ctx, s.db, "WHERE sync_change_counter > 0")
}

func (s *SQLiteStore) AllTombstones(ctx context.Context) ([]*model.Tombstone, error) {
	rows, err := s.db.QueryContext(ctx, selectTombstone+" ORDER BY guid")
	if err != nil {
		return nil, fmt.Errorf("querying tombstones: %w", err)
	}
	defer rows.Close()

	var tombs []*model.Tombstone
	for rows.Next() {
		t, err := scanTombstone(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tombstone: %w", err)
		}
		tombs = append(tombs, t)
	}
	return tombs, rows.Err()
}

func (s *SQLiteStore) LoadState(ctx context.Context, guid string) (*reconcile.State, error) {
	var st *reconcile.State
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		st, err = loadState(ctx, tx, guid)
		return err
	})
	return st, err
}

func (s *SQLiteStore) FindDuplicates(ctx context.Context, addr model.Address, fields []model.FieldName) ([]*reconcile.State, error) {
	if len(fields) == 0 || !addr.HasAny(fields) {
		return nil, nil
	}

	conds := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		if _, err := model.ParseFieldName(string(f)); err != nil {
			return nil, fmt.Errorf("dedupe fields: %w", err)
		}
		conds = append(conds, fmt.Sprintf("COALESCE(%s, '') = ?", f))
		v := ""
		if p := addr.Get(f); p != nil {
			v = *p
		}
		args = append(args, v)
	}
	query := "SELECT guid FROM addresses_data WHERE " + strings.Join(conds, " AND ") + " ORDER BY guid"

	var states []*reconcile.State
	err := s.read(ctx, func(tx *sql.Tx) error {
		guids, err := queryGUIDs(ctx, tx, query, args...)
		if err != nil {
			return fmt.Errorf("finding duplicates: %w", err)
		}
		for _, guid := range guids {
			st, err := loadState(ctx, tx, guid)
			if err != nil {
				return err
			}
			states = append(states, st)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return states, nil
}

// queryGUIDs collects a single-column result before the caller issues more
// queries on the same connection.
func queryGUIDs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guids []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		guids = append(guids, g)
	}
	return guids, rows.Err()
}

// Path returns the file path of the database.
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations reports whether the schema is at the latest version.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
