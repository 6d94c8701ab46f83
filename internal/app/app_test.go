package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"addrstore/internal/addresses"
	"addrstore/internal/config"
	"addrstore/internal/model"
	"addrstore/internal/testutil"
)

func newTestConfig(t *testing.T, device, remoteRoot string) *config.Config {
	t.Helper()
	cfg := config.NewConfig(device, t.TempDir())
	cfg.Encryption.Type = "test"
	cfg.Remotes = []config.RemoteConfig{{Type: "filesystem", Name: "shared", FSRoot: remoteRoot}}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *App {
	t.Helper()
	a, err := NewApp(cfg, operation, "", Options{Quiet: true})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	return a
}

func TestApp_SyncBetweenDevices(t *testing.T) {
	ctx := context.Background()
	shared := t.TempDir()
	cfgA := newTestConfig(t, "laptop", shared)
	cfgB := newTestConfig(t, "phone", shared)

	a := newTestApp(t, cfgA, "Add")
	rec, err := a.Add(ctx, testutil.Address("1 Main St", "Springfield"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := a.Sync(ctx, "", "pw"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfgA.Database.DataDir, "laptop.db")); err != nil {
		t.Errorf("database file missing: %v", err)
	}

	b := newTestApp(t, cfgB, "Sync")
	defer b.Close()
	report, err := b.Sync(ctx, "shared", "pw")
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Round.Applied != 1 {
		t.Errorf("Applied = %d, want 1", report.Round.Applied)
	}
	got, err := b.Get(ctx, rec.GUID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.StreetAddress == nil || *got.StreetAddress != "1 Main St" {
		t.Errorf("StreetAddress = %v, want 1 Main St", got.StreetAddress)
	}

	rounds, err := b.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(rounds) != 1 || rounds[0].Status != addresses.RoundOK {
		t.Errorf("History() = %+v, want one ok round", rounds)
	}
}

func TestApp_OperationStatus(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t, "laptop", t.TempDir()), "Update")
	defer a.Close()

	_, err := a.Update(ctx, "missing", model.Patch{model.FieldEmail: model.String("x")})
	if !errors.Is(err, addresses.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
	if a.op.Succeeded() {
		t.Error("operation should be marked failed")
	}

	if _, err := a.Sync(ctx, "nope", "pw"); err == nil {
		t.Error("Sync() with unknown remote expected error")
	}
}

func TestApp_CallAndBackup(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t, "laptop", t.TempDir()), "Call")
	defer a.Close()

	resp := a.Call(ctx, []byte(`{"method":"add","address":{"street_address":"1 Main St","country":"US"}}`))
	if len(resp) == 0 || string(resp[:10]) != `{"ok":true` {
		t.Errorf("Call() = %s", resp)
	}

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := a.Backup(dest); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if err := a.Backup(dest); err == nil {
		t.Error("Backup() over an existing file expected error")
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := newTestConfig(t, "", t.TempDir())
	if _, err := NewApp(cfg, "Add", "", Options{Quiet: true}); err == nil {
		t.Error("NewApp() with missing device id expected error")
	}
}
