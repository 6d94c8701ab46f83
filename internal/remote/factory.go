package remote

import (
	"context"
	"fmt"

	"addrstore/internal/addresses"
	"addrstore/internal/config"
)

// NewRemoteFromConfig creates a Remote implementation based on the remote config type.
func NewRemoteFromConfig(ctx context.Context, cfg config.RemoteConfig) (addresses.Remote, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryRemote(cfg.Name), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		r, err := NewFileSystemRemote(cfg.Name, cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "s3":
		r, err := NewS3Remote(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
