package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"addrstore/internal/model"
)

// MaxSyncRetries bounds sync.max_retries.
const MaxSyncRetries = 20

// Config represents the main configuration for addrstore.
type Config struct {
	DeviceID   string           `toml:"device_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	Dedupe     DedupeConfig     `toml:"dedupe"`
	Sync       SyncConfig       `toml:"sync"`
	Encryption EncryptionConfig `toml:"encryption"`
	Remotes    []RemoteConfig   `toml:"remotes"`
}

// DatabaseConfig represents configuration for the address database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// DedupeConfig controls how incoming records are matched against local ones.
type DedupeConfig struct {
	// Fields is the address identity. Empty disables dedupe.
	Fields []string `toml:"fields"`
	// IncludeSynced also matches local rows the server already knows.
	IncludeSynced bool `toml:"include_synced"`
}

// SyncConfig tunes reconciliation rounds.
type SyncConfig struct {
	MaxRetries int `toml:"max_retries"` // re-plans after a conflict; defaults to 3
}

// EncryptionConfig holds paths to the age key pair used for sync payloads.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	Armor          bool   `toml:"armor,omitempty"` // PEM-armor payloads on the remote
}

// RemoteConfig represents configuration for a sync remote.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", or "s3"
	Name string `toml:"name"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(deviceID, baseDir string) *Config {
	fields := make([]string, len(model.DefaultDedupeFields))
	for i, f := range model.DefaultDedupeFields {
		fields[i] = string(f)
	}
	return &Config{
		DeviceID: deviceID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Dedupe:   DedupeConfig{Fields: fields, IncludeSynced: true},
		Sync:     SyncConfig{MaxRetries: 3},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "addrstore.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "addrstore.key"),
		},
	}
}

// DedupeFields parses the configured identity fields.
func (c *Config) DedupeFields() ([]model.FieldName, error) {
	return model.ParseFieldNames(c.Dedupe.Fields)
}

// Validate checks values that cannot be caught by decoding alone.
func (c *Config) Validate() error {
	var errs []error
	if c.DeviceID == "" {
		errs = append(errs, errors.New("device_id is required"))
	}
	if _, err := c.DedupeFields(); err != nil {
		errs = append(errs, fmt.Errorf("dedupe.fields: %w", err))
	}
	if c.Sync.MaxRetries < 0 || c.Sync.MaxRetries > MaxSyncRetries {
		errs = append(errs, fmt.Errorf("sync.max_retries must be between 0 and %d, got %d", MaxSyncRetries, c.Sync.MaxRetries))
	}
	names := make(map[string]bool)
	for i, r := range c.Remotes {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("remotes[%d]: name is required", i))
		} else if names[r.Name] {
			errs = append(errs, fmt.Errorf("remotes[%d]: duplicate name %q", i, r.Name))
		}
		names[r.Name] = true
	}
	return errors.Join(errs...)
}

// Remote returns the remote with the given name, or the first one when name is empty.
func (c *Config) Remote(name string) (RemoteConfig, error) {
	if len(c.Remotes) == 0 {
		return RemoteConfig{}, errors.New("no remotes configured")
	}
	if name == "" {
		return c.Remotes[0], nil
	}
	for _, r := range c.Remotes {
		if r.Name == name {
			return r, nil
		}
	}
	return RemoteConfig{}, fmt.Errorf("unknown remote %q", name)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
