package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"addrstore/internal/addresses"
	"addrstore/internal/config"
	"addrstore/internal/database"
	"addrstore/internal/encryption"
	"addrstore/internal/ffi"
	"addrstore/internal/model"
	"addrstore/internal/reconcile"
	"addrstore/internal/remote"
	"addrstore/internal/syncmgr"
)

// App is the application layer between the CLI and the Engine.
// It constructs all dependencies from config and manages the store and
// log file lifecycle on Close.
type App struct {
	cfg       *config.Config
	store     *database.SQLiteStore
	encryptor addresses.Encryptor
	engine    *addresses.Engine
	logger    addresses.Logger
	op        *Operation
	logFile   *os.File
}

// Options adjust how an App is built.
type Options struct {
	Verbose bool // log debug records
	Quiet   bool // do not echo log records to stderr
}

// NewApp creates a fully wired App from the given config.
// operation names the CLI command being run (e.g. "Add", "Sync").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation, parameters string, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	fields, err := cfg.DedupeFields()
	if err != nil {
		return nil, err
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	op := NewOperation(operation, parameters)
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	clock := addresses.RealClock{}
	idgen := addresses.UUIDGenerator{}

	store, err := database.NewStoreFromConfig(cfg.Database, cfg.DeviceID, clock, idgen)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	planner := reconcile.NewPlanner(fields, cfg.Dedupe.IncludeSynced)
	engine := addresses.NewEngine(store, planner, logger, clock, idgen, addresses.Options{MaxRetries: cfg.Sync.MaxRetries})

	return &App{
		cfg:       cfg,
		store:     store,
		encryptor: enc,
		engine:    engine,
		logger:    logger,
		op:        op,
		logFile:   logFile,
	}, nil
}

// Engine exposes the wired engine.
func (a *App) Engine() *addresses.Engine {
	return a.engine
}

// Encryptor exposes the configured encryptor for key management commands.
func (a *App) Encryptor() addresses.Encryptor {
	return a.encryptor
}

// Call runs a single host request through the FFI handler.
func (a *App) Call(ctx context.Context, req []byte) []byte {
	return ffi.NewHandler(a.engine, a.logger).Handle(ctx, req)
}

// Sync runs one round against the named remote (the first configured one
// when name is empty). The passphrase unlocks the private key for the
// duration of the round.
func (a *App) Sync(ctx context.Context, remoteName, passphrase string) (*syncmgr.Report, error) {
	rcfg, err := a.cfg.Remote(remoteName)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	r, err := remote.NewRemoteFromConfig(ctx, rcfg)
	if err != nil {
		return nil, a.op.Fail(fmt.Errorf("creating remote: %w", err))
	}
	if !a.encryptor.IsConfigured() {
		return nil, a.op.Fail(fmt.Errorf("encryption keys are not set up; run `addrstore keys init`"))
	}
	dec, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return nil, a.op.Fail(fmt.Errorf("unlocking private key: %w", err))
	}

	a.logger.Info("syncing", "remote", rcfg.Name, "type", rcfg.Type)
	report, err := syncmgr.NewSyncer(a.engine, r, a.encryptor, a.logger).Sync(ctx, dec)
	return report, a.op.Fail(err)
}

// Add stores a new address.
func (a *App) Add(ctx context.Context, addr model.Address) (*model.LocalRecord, error) {
	rec, err := a.engine.Add(ctx, addr)
	return rec, a.op.Fail(err)
}

// Update patches an existing address.
func (a *App) Update(ctx context.Context, guid string, patch model.Patch) (*model.LocalRecord, error) {
	rec, err := a.engine.Update(ctx, guid, patch)
	return rec, a.op.Fail(err)
}

// Delete removes an address.
func (a *App) Delete(ctx context.Context, guid string) (bool, error) {
	deleted, err := a.engine.Delete(ctx, guid)
	return deleted, a.op.Fail(err)
}

// Touch records a use of an address.
func (a *App) Touch(ctx context.Context, guid string) (*model.LocalRecord, error) {
	rec, err := a.engine.Touch(ctx, guid)
	return rec, a.op.Fail(err)
}

// Get returns one address.
func (a *App) Get(ctx context.Context, guid string) (*model.LocalRecord, error) {
	return a.engine.Get(ctx, guid)
}

// List returns all addresses, or only the unsynced ones.
func (a *App) List(ctx context.Context, unsynced bool) ([]*model.LocalRecord, error) {
	if unsynced {
		return a.engine.ListUnsynced(ctx)
	}
	return a.engine.List(ctx)
}

// ResetSync forgets all sync state.
func (a *App) ResetSync(ctx context.Context) error {
	return a.op.Fail(a.engine.ResetSync(ctx))
}

// History returns the most recent sync rounds.
func (a *App) History(ctx context.Context, limit int) ([]*addresses.RoundOutcome, error) {
	return a.engine.History(ctx, limit)
}

// Backup writes a consistent copy of the database to dest.
func (a *App) Backup(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return a.op.Fail(fmt.Errorf("backup destination %s already exists", dest))
	}
	return a.op.Fail(a.store.BackupTo(dest))
}

// Close logs the operation outcome and releases the store and log file.
func (a *App) Close() error {
	var firstErr error

	a.logger.Info("operation finished",
		"operation", a.op.Name,
		"parameters", a.op.Parameters,
		"status", a.op.Status,
		"duration", time.Since(a.op.StartedAt).Round(time.Millisecond).String(),
	)

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
