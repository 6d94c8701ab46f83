package database

import (
	"context"
	"database/sql"
	"fmt"

	"addrstore/internal/addresses"
	"addrstore/internal/model"
	"addrstore/internal/reconcile"
)

// Apply executes plan in one transaction. Every guid in plan.Expect is
// re-read first; if any row differs from what the planner saw, nothing is
// written and the error wraps addresses.ErrConflict.
func (s *SQLiteStore) Apply(ctx context.Context, plan *reconcile.UpdatePlan) (*reconcile.AppliedOutcome, error) {
	err := s.write(ctx, func(tx *sql.Tx) error {
		for i := range plan.Expect {
			want := &plan.Expect[i]
			got, err := loadState(ctx, tx, want.GUID)
			if err != nil {
				return err
			}
			if !got.Equal(want) {
				return addresses.Conflict(want.GUID)
			}
		}

		for _, m := range plan.Mutations {
			if err := applyMutation(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &reconcile.AppliedOutcome{
		GUID:      plan.GUID,
		Kind:      plan.Kind,
		Canonical: plan.Canonical,
		Changed:   plan.Touched(),
		Mutations: len(plan.Mutations),
	}, nil
}

func applyMutation(ctx context.Context, tx *sql.Tx, m reconcile.Mutation) error {
	switch m := m.(type) {
	case reconcile.PutLocal:
		return putLocal(ctx, tx, m.Record)
	case reconcile.PutMirror:
		return putMirror(ctx, tx, m.Record)
	case reconcile.PutTombstone:
		return putTombstone(ctx, tx, m.Tombstone)
	case reconcile.DeleteLocal:
		return deleteRow(ctx, tx, "addresses_data", m.GUID)
	case reconcile.DeleteMirror:
		return deleteRow(ctx, tx, "addresses_mirror", m.GUID)
	case reconcile.DeleteTombstone:
		return deleteRow(ctx, tx, "addresses_tombstones", m.GUID)
	}
	return fmt.Errorf("unknown mutation %T", m)
}

// MarkSynchronized records an upload. Each uploaded record becomes the new
// Mirror and its change counter drops by the value it had when it was read
// for upload. Uploaded deletions forget the guid entirely.
func (s *SQLiteStore) MarkSynchronized(ctx context.Context, uploaded []addresses.Uploaded) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		for _, u := range uploaded {
			if err := s.markOne(ctx, tx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) markOne(ctx context.Context, tx *sql.Tx, u addresses.Uploaded) error {
	cur, err := getLocal(ctx, tx, u.GUID)
	if err != nil {
		return err
	}

	if u.Deleted {
		if cur != nil {
			// Recreated under the same guid after the deletion was read.
			return nil
		}
		if err := deleteRow(ctx, tx, "addresses_tombstones", u.GUID); err != nil {
			return err
		}
		return deleteRow(ctx, tx, "addresses_mirror", u.GUID)
	}

	if u.Record == nil {
		return fmt.Errorf("uploaded entry %s has no record", u.GUID)
	}
	if err := putMirror(ctx, tx, u.Record); err != nil {
		return err
	}

	if cur == nil {
		// Deleted while the upload was in flight. The server now holds the
		// record, so the deletion has to be uploaded too.
		tomb, err := getTombstone(ctx, tx, u.GUID)
		if err != nil || tomb != nil {
			return err
		}
		return putTombstone(ctx, tx, model.Tombstone{GUID: u.GUID, TimeDeleted: s.now()})
	}

	counter := max(cur.ChangeCounter-u.ChangeCounter, 0)
	if _, err := tx.ExecContext(ctx,
		"UPDATE addresses_data SET sync_change_counter = ? WHERE guid = ?", counter, u.GUID); err != nil {
		return fmt.Errorf("updating change counter for %s: %w", u.GUID, err)
	}
	return nil
}

// ResetSync drops every Mirror and Tombstone row and marks all Local rows
// unsynced, as after disconnecting from a sync account.
func (s *SQLiteStore) ResetSync(ctx context.Context) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM addresses_mirror",
			"DELETE FROM addresses_tombstones",
			"UPDATE addresses_data SET sync_change_counter = 1 WHERE sync_change_counter = 0",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("resetting sync state: %w", err)
			}
		}
		return nil
	})
}
