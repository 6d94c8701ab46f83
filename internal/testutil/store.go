package testutil

import (
	"testing"

	"addrstore/internal/addresses"
	"addrstore/internal/database"
)

// NewTestStore creates an in-memory store with migrations applied, a fixed
// clock, and sequential guids. It is closed when the test completes.
func NewTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()
	return NewTestStoreWith(t, FixedClock(), NewStubIDGenerator())
}

// NewTestStoreWith is NewTestStore with caller-supplied clock and ids.
func NewTestStoreWith(t *testing.T, clock addresses.Clock, idgen addresses.IDGenerator) *database.SQLiteStore {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:", clock, idgen)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
