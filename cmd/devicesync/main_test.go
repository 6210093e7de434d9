package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/devicesync-core/internal/infrastructure/config"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/logging"
	"github.com/nerrad567/devicesync-core/internal/serial"
	"github.com/nerrad567/devicesync-core/internal/store"
)

const testSecret = "test-secret-for-development-only-0123456789"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("DEVICESYNC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_ShortJWTSecret verifies config validation stops startup.
func TestRun_ShortJWTSecret(t *testing.T) {
	t.Setenv("DEVICESYNC_JWT_SECRET", "")
	t.Setenv("DEVICESYNC_CONFIG", writeConfig(t, `
site:
  id: test-site
store:
  driver: memory
security:
  jwt:
    secret: "too-short"
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a short JWT secret")
	}
}

// TestRun_MissingSeedFile verifies a broken seed file stops startup before
// the broker or the API are touched.
func TestRun_MissingSeedFile(t *testing.T) {
	t.Setenv("DEVICESYNC_CONFIG", writeConfig(t, `
site:
  id: test-site
store:
  driver: memory
  seed_file: "/nonexistent/serials.yaml"
security:
  jwt:
    secret: "`+testSecret+`"
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a missing seed file")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("DEVICESYNC_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("DEVICESYNC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestProvisionSerials_KeepsClaims verifies a restart does not reset the
// claim of an already provisioned serial.
func TestProvisionSerials_KeepsClaims(t *testing.T) {
	ctx := context.Background()
	registry := serial.NewRegistry(store.NewMemory())
	cfg := config.StoreConfig{SeedFile: "../../configs/serials.yaml", SampleSerials: true}

	if err := provisionSerials(ctx, registry, cfg, logging.Nop()); err != nil {
		t.Fatalf("provisionSerials() error = %v", err)
	}
	if err := registry.MarkClaimed(ctx, "SN003", "u1"); err != nil {
		t.Fatalf("MarkClaimed() error = %v", err)
	}

	if err := provisionSerials(ctx, registry, cfg, logging.Nop()); err != nil {
		t.Fatalf("second provisionSerials() error = %v", err)
	}

	records, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	found := false
	for _, rec := range records {
		if rec.Serial == "SN003" {
			found = true
			if !rec.Claimed || rec.ClaimedBy != "u1" {
				t.Errorf("SN003 claim = %v/%q, want true/u1", rec.Claimed, rec.ClaimedBy)
			}
		}
	}
	if !found {
		t.Fatal("SN003 was not provisioned")
	}
	if len(records) != 6 {
		t.Errorf("len(records) = %d, want 6", len(records))
	}
}

// TestProvisionSerials_Nothing verifies an empty store section is a no-op.
func TestProvisionSerials_Nothing(t *testing.T) {
	registry := serial.NewRegistry(store.NewMemory())
	if err := provisionSerials(context.Background(), registry, config.StoreConfig{}, logging.Nop()); err != nil {
		t.Fatalf("provisionSerials() error = %v", err)
	}
	records, err := registry.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}
