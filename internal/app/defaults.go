package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Defaults are the paths and identity used when no config overrides them.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
	DeviceID   string
}

// GetDefaults resolves defaults, checking environment variables first:
//   - ADDRSTORE_CONFIG_PATH: config file (default ~/.config/addrstore.toml)
//   - ADDRSTORE_HOME: data directory (default ~/.local/share/addrstore)
//   - ADDRSTORE_DEVICE_ID: device id (default: the hostname)
func GetDefaults() (*Defaults, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	configPath := envOr("ADDRSTORE_CONFIG_PATH", filepath.Join(homeDir, ".config", "addrstore.toml"))
	baseDir := envOr("ADDRSTORE_HOME", filepath.Join(homeDir, ".local", "share", "addrstore"))

	deviceID := os.Getenv("ADDRSTORE_DEVICE_ID")
	if deviceID == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("cannot determine hostname: %w", err)
		}
		deviceID = sanitizeDeviceID(host)
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		DeviceID:   deviceID,
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// sanitizeDeviceID keeps the id usable as a database file name.
func sanitizeDeviceID(host string) string {
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	id := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, host)
	if id == "" {
		return "device"
	}
	return id
}
