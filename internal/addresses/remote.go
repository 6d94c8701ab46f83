package addresses

import (
	"context"
	"io"
)

// Remote is the object store a sync manager exchanges payloads through.
// Each record lives under its own key; the key is the record guid.
type Remote interface {
	// List returns every key currently stored.
	List(ctx context.Context) ([]string, error)

	// Get writes the payload stored under key to w.
	Get(ctx context.Context, key string, w io.Writer) error

	// Put stores size bytes read from r under key, replacing any previous payload.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// ValidateSetup verifies that the remote is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
