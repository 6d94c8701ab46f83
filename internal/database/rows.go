package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"addrstore/internal/model"
	"addrstore/internal/reconcile"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// recordColumns lists the columns shared by addresses_data and
// addresses_mirror, in the order scanRecord expects them.
var recordColumns = func() string {
	cols := []string{"guid"}
	for _, f := range model.AllFields {
		cols = append(cols, string(f))
	}
	cols = append(cols, "time_created", "time_last_used", "time_last_modified", "times_used")
	return strings.Join(cols, ", ")
}()

// recordPlaceholders matches recordColumns.
var recordPlaceholders = strings.TrimSuffix(strings.Repeat("?, ", len(model.AllFields)+5), ", ")

var (
	selectLocal     = "SELECT " + recordColumns + ", sync_change_counter FROM addresses_data"
	selectMirror    = "SELECT " + recordColumns + " FROM addresses_mirror"
	selectTombstone = "SELECT guid, time_deleted FROM addresses_tombstones"

	upsertLocal = "INSERT OR REPLACE INTO addresses_data (" + recordColumns + ", sync_change_counter) VALUES (" +
		recordPlaceholders + ", ?)"
	upsertMirror    = "INSERT OR REPLACE INTO addresses_mirror (" + recordColumns + ") VALUES (" + recordPlaceholders + ")"
	upsertTombstone = "INSERT OR REPLACE INTO addresses_tombstones (guid, time_deleted) VALUES (?, ?)"
)

func scanRecord(sc scanner, extra ...any) (*model.AddressRecord, error) {
	var (
		rec                     model.AddressRecord
		created, used, modified int64
	)
	fields := make([]sql.NullString, len(model.AllFields))
	dest := []any{&rec.GUID}
	for i := range fields {
		dest = append(dest, &fields[i])
	}
	dest = append(dest, &created, &used, &modified, &rec.TimesUsed)
	dest = append(dest, extra...)

	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	for i, f := range model.AllFields {
		if fields[i].Valid {
			rec.Address.Set(f, &fields[i].String)
		}
	}
	rec.TimeCreated = model.Timestamp(created)
	rec.TimeLastUsed = model.Timestamp(used)
	rec.TimeLastModified = model.Timestamp(modified)
	return &rec, nil
}

func scanLocal(sc scanner) (*model.LocalRecord, error) {
	var counter int64
	rec, err := scanRecord(sc, &counter)
	if err != nil {
		return nil, err
	}
	return &model.LocalRecord{AddressRecord: *rec, ChangeCounter: counter}, nil
}

func scanTombstone(sc scanner) (*model.Tombstone, error) {
	var (
		t       model.Tombstone
		deleted int64
	)
	if err := sc.Scan(&t.GUID, &deleted); err != nil {
		return nil, err
	}
	t.TimeDeleted = model.Timestamp(deleted)
	return &t, nil
}

// recordArgs returns the bind values for recordColumns.
func recordArgs(rec *model.AddressRecord) []any {
	args := []any{rec.GUID}
	for _, f := range model.AllFields {
		args = append(args, nullable(rec.Address.Get(f)))
	}
	return append(args,
		int64(rec.TimeCreated),
		int64(rec.TimeLastUsed),
		int64(rec.TimeLastModified),
		rec.TimesUsed,
	)
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func getLocal(ctx context.Context, q querier, guid string) (*model.LocalRecord, error) {
	rec, err := scanLocal(q.QueryRowContext(ctx, selectLocal+" WHERE guid = ?", guid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading local row: %w", err)
	}
	return rec, nil
}

func getMirror(ctx context.Context, q querier, guid string) (*model.AddressRecord, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, selectMirror+" WHERE guid = ?", guid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading mirror row: %w", err)
	}
	return rec, nil
}

func getTombstone(ctx context.Context, q querier, guid string) (*model.Tombstone, error) {
	t, err := scanTombstone(q.QueryRowContext(ctx, selectTombstone+" WHERE guid = ?", guid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tombstone: %w", err)
	}
	return t, nil
}

func loadState(ctx context.Context, q querier, guid string) (*reconcile.State, error) {
	st := &reconcile.State{GUID: guid}
	var err error
	if st.Local, err = getLocal(ctx, q, guid); err != nil {
		return nil, err
	}
	if st.Mirror, err = getMirror(ctx, q, guid); err != nil {
		return nil, err
	}
	if st.Tombstone, err = getTombstone(ctx, q, guid); err != nil {
		return nil, err
	}
	return st, nil
}

func listLocal(ctx context.Context, q querier, where string, args ...any) ([]*model.LocalRecord, error) {
	rows, err := q.QueryContext(ctx, selectLocal+" "+where+" ORDER BY time_last_used DESC, guid", args...)
	if err != nil {
		return nil, fmt.Errorf("querying local rows: %w", err)
	}
	defer rows.Close()

	var recs []*model.LocalRecord
	for rows.Next() {
		rec, err := scanLocal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning local row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func putLocal(ctx context.Context, q querier, rec *model.LocalRecord) error {
	args := append(recordArgs(&rec.AddressRecord), rec.ChangeCounter)
	if _, err := q.ExecContext(ctx, upsertLocal, args...); err != nil {
		return fmt.Errorf("writing local row %s: %w", rec.GUID, err)
	}
	return nil
}

func putMirror(ctx context.Context, q querier, rec *model.AddressRecord) error {
	if _, err := q.ExecContext(ctx, upsertMirror, recordArgs(rec)...); err != nil {
		return fmt.Errorf("writing mirror row %s: %w", rec.GUID, err)
	}
	return nil
}

func putTombstone(ctx context.Context, q querier, t model.Tombstone) error {
	if _, err := q.ExecContext(ctx, upsertTombstone, t.GUID, int64(t.TimeDeleted)); err != nil {
		return fmt.Errorf("writing tombstone %s: %w", t.GUID, err)
	}
	return nil
}

func deleteRow(ctx context.Context, q querier, table, guid string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE guid = ?", guid); err != nil {
		return fmt.Errorf("deleting %s from %s: %w", guid, table, err)
	}
	return nil
}
