package database

import (
	"fmt"
	"os"
	"path/filepath"

	"addrstore/internal/addresses"
	"addrstore/internal/config"
)

// PathFromConfig returns the database file for deviceID, or ":memory:".
func PathFromConfig(cfg config.DatabaseConfig, deviceID string) (string, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return "", fmt.Errorf("data_dir required for sqlite database")
		}
		if deviceID == "" {
			return "", fmt.Errorf("device id required for sqlite database")
		}
		return filepath.Join(cfg.DataDir, deviceID+".db"), nil
	case "memory":
		return ":memory:", nil
	default:
		return "", fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// NewStoreFromConfig opens the store selected by the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig, deviceID string, clock addresses.Clock, idgen addresses.IDGenerator) (*SQLiteStore, error) {
	path, err := PathFromConfig(cfg, deviceID)
	if err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	return NewSQLiteStore(path, clock, idgen)
}
