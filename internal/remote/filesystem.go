package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"addrstore/internal/addresses"
)

// FileSystemRemote stores one file per record:
//
//	<root>/
//	  records/
//	    <guid>
//
// A shared or synced directory is enough to exchange records between devices.
type FileSystemRemote struct {
	name       string
	root       string
	recordsDir string
}

// NewFileSystemRemote creates a filesystem remote rooted at the given path.
func NewFileSystemRemote(name, root string) (*FileSystemRemote, error) {
	recordsDir := filepath.Join(root, "records")
	if err := os.MkdirAll(recordsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}
	return &FileSystemRemote{name: name, root: root, recordsDir: recordsDir}, nil
}

func (f *FileSystemRemote) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.recordsDir)
	if err != nil {
		return nil, fmt.Errorf("reading records directory: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileSystemRemote) Get(ctx context.Context, key string, w io.Writer) error {
	if err := validateKey(key); err != nil {
		return err
	}

	src, err := os.Open(filepath.Join(f.recordsDir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// Put replaces the payload for key with an atomic write (temp file + rename).
func (f *FileSystemRemote) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(f.recordsDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, filepath.Join(f.recordsDir, key)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// ValidateSetup verifies that the remote directories are accessible.
func (f *FileSystemRemote) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{f.root, f.recordsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("remote directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("remote path is not a directory: %s", dir)
		}
	}
	return nil
}

var _ addresses.Remote = (*FileSystemRemote)(nil)
