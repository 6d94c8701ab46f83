package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"addrstore/internal/addresses"
)

// MemoryRemote keeps payloads in memory. Useful for tests and for syncing
// two stores inside one process. Safe for concurrent use.
type MemoryRemote struct {
	name    string
	objects map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryRemote creates an empty in-memory remote.
func NewMemoryRemote(name string) *MemoryRemote {
	return &MemoryRemote{
		name:    name,
		objects: make(map[string][]byte),
	}
}

func (m *MemoryRemote) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryRemote) Get(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

func (m *MemoryRemote) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

// Delete removes a payload. Tests use it to simulate server-side purges.
func (m *MemoryRemote) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}

// ValidateSetup always succeeds for an in-memory remote.
func (m *MemoryRemote) ValidateSetup(ctx context.Context) error {
	return nil
}

var _ addresses.Remote = (*MemoryRemote)(nil)
