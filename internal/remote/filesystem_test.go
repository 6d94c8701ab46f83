package remote

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemRemote(t *testing.T) {
	r, err := NewFileSystemRemote("test", filepath.Join(t.TempDir(), "remote"))
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error = %v", err)
	}
	exerciseRemote(t, r)
}

func TestFileSystemRemote_Layout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	r, err := NewFileSystemRemote("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error = %v", err)
	}

	if err := r.Put(ctx, "abc", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "records", "abc"))
	if err != nil {
		t.Fatalf("payload file missing: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("payload = %q, want hello", data)
	}

	t.Run("size mismatch leaves no file behind", func(t *testing.T) {
		if err := r.Put(ctx, "short", strings.NewReader("hello"), 100); err == nil {
			t.Fatal("Put() expected size mismatch error")
		}
		entries, _ := os.ReadDir(filepath.Join(root, "records"))
		for _, e := range entries {
			if e.Name() != "abc" {
				t.Errorf("unexpected file %q", e.Name())
			}
		}
	})

	t.Run("temp files are not listed", func(t *testing.T) {
		os.WriteFile(filepath.Join(root, "records", ".tmp-123"), []byte("x"), 0644)
		keys, err := r.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(keys) != 1 || keys[0] != "abc" {
			t.Errorf("List() = %v, want [abc]", keys)
		}
	})

	t.Run("validate fails when root is removed", func(t *testing.T) {
		gone, _ := NewFileSystemRemote("gone", filepath.Join(t.TempDir(), "r"))
		os.RemoveAll(gone.root)
		if err := gone.ValidateSetup(ctx); err == nil {
			t.Error("ValidateSetup() expected error")
		}
	})
}
