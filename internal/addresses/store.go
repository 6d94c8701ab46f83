package addresses

import (
	"context"

	"addrstore/internal/model"
	"addrstore/internal/reconcile"
)

// Store persists Local, Mirror and Tombstone rows.
// Lookups return nil, nil when a row does not exist. Mutating calls are
// serialised by the implementation and each runs in one transaction.
type Store interface {
	// InsertLocal allocates a guid and stores addr as a new unsynced Local row.
	InsertLocal(ctx context.Context, addr model.Address) (*model.LocalRecord, error)

	// UpdateLocal applies patch to the Local row and marks it unsynced.
	// Returns ErrNotFound when the guid has no Local row.
	UpdateLocal(ctx context.Context, guid string, patch model.Patch) (*model.LocalRecord, error)

	// DeleteLocal removes the Local row. A guid the server knows about is
	// replaced by a Tombstone; otherwise every trace of it is purged.
	// Reports false when there was nothing to delete.
	DeleteLocal(ctx context.Context, guid string) (bool, error)

	// Touch records one use of the address without marking it unsynced.
	Touch(ctx context.Context, guid string) (*model.LocalRecord, error)

	GetLocal(ctx context.Context, guid string) (*model.LocalRecord, error)
	GetMirror(ctx context.Context, guid string) (*model.AddressRecord, error)
	GetTombstone(ctx context.Context, guid string) (*model.Tombstone, error)

	AllLocal(ctx context.Context) ([]*model.LocalRecord, error)
	AllUnsyncedLocal(ctx context.Context) ([]*model.LocalRecord, error)
	AllTombstones(ctx context.Context) ([]*model.Tombstone, error)

	// LoadState reads every row held for guid.
	LoadState(ctx context.Context, guid string) (*reconcile.State, error)

	// FindDuplicates returns the state of every Local row that matches addr
	// on fields. Rows where all of fields are blank never match.
	FindDuplicates(ctx context.Context, addr model.Address, fields []model.FieldName) ([]*reconcile.State, error)

	// Apply executes plan atomically. It returns ErrConflict if any row in
	// plan.Expect changed after the plan was computed.
	Apply(ctx context.Context, plan *reconcile.UpdatePlan) (*reconcile.AppliedOutcome, error)

	// MarkSynchronized records that the given records and deletions were uploaded.
	MarkSynchronized(ctx context.Context, uploaded []Uploaded) error

	// ResetSync forgets all server state and marks every Local row unsynced.
	ResetSync(ctx context.Context) error

	RecordRound(ctx context.Context, round *RoundOutcome) error
	ListRounds(ctx context.Context, limit int) ([]*RoundOutcome, error)

	Close() error
}
