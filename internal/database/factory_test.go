package database

import (
	"os"
	"path/filepath"
	"testing"

	"addrstore/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		got, err := NewStoreFromConfig(config.DatabaseConfig{Type: "memory"}, "device-123", nil, nil)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
		}
		got.Close()
	})

	t.Run("sqlite database", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		got, err := NewStoreFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: dir}, "device-123", nil, nil)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		want := filepath.Join(dir, "device-123.db")
		if got.Path() != want {
			t.Errorf("Path() = %q, want %q", got.Path(), want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		got, err := NewStoreFromConfig(config.DatabaseConfig{Type: "sqlite"}, "device-123", nil, nil)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewStoreFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewStoreFromConfig(config.DatabaseConfig{Type: "postgres"}, "device-123", nil, nil); err == nil {
			t.Error("NewStoreFromConfig() expected error for unknown type")
		}
	})
}

func TestPathFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.DatabaseConfig
		deviceID string
		want     string
		wantErr  bool
	}{
		{name: "memory", cfg: config.DatabaseConfig{Type: "memory"}, want: ":memory:"},
		{name: "sqlite", cfg: config.DatabaseConfig{Type: "sqlite", DataDir: "/data/db"}, deviceID: "laptop", want: "/data/db/laptop.db"},
		{name: "sqlite without device", cfg: config.DatabaseConfig{Type: "sqlite", DataDir: "/data/db"}, wantErr: true},
		{name: "unknown", cfg: config.DatabaseConfig{Type: "bolt"}, deviceID: "laptop", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PathFromConfig(tt.cfg, tt.deviceID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PathFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("PathFromConfig() = %q, want %q", got, tt.want)
			}
		})
	}
}
