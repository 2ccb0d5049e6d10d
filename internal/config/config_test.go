package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Create temporary config file
	content := `
server:
  port: 9191
  host: "127.0.0.1"

ledger:
  dailyLimitMB: 200
  storageLimitMB: 80
  store: "memory"

token:
  activeKeyID: "k2"
  keys:
    k1: "old-secret"
    k2: "new-secret"
`

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	// Load config
	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify loaded values
	if cfg.Server.Port != 9191 {
		t.Errorf("Expected port 9191, got %d", cfg.Server.Port)
	}

	if cfg.Ledger.DailyLimitMB != 200 {
		t.Errorf("Expected daily limit 200, got %d", cfg.Ledger.DailyLimitMB)
	}

	if cfg.Ledger.Store != "memory" {
		t.Errorf("Expected memory store, got %s", cfg.Ledger.Store)
	}

	if cfg.Token.ActiveKeyID != "k2" {
		t.Errorf("Expected active key k2, got %s", cfg.Token.ActiveKeyID)
	}

	if cfg.Token.Keys["k1"] != "old-secret" {
		t.Errorf("Expected rotated key to stay verifiable, got %q", cfg.Token.Keys["k1"])
	}

	// Defaults still apply for sections the file omits
	if cfg.Token.UploadTTL.Minutes() != 30 {
		t.Errorf("Expected default upload TTL 30m, got %v", cfg.Token.UploadTTL)
	}

	if cfg.Ledger.StorageLimitBytes() != 80<<20 {
		t.Errorf("Expected storage limit in bytes 80MB, got %d", cfg.Ledger.StorageLimitBytes())
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent file")
	}
}
