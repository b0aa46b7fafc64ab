package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolateHome points the loader at an empty home directory
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

// TestLoad_Defaults tests that everything has a sensible default
func TestLoad_Defaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	wantDB := filepath.Join(home, ".sprout", "sprout.db")
	if cfg.Database.Path != wantDB {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, wantDB)
	}
	if cfg.Sync.MaxRetries != 5 {
		t.Errorf("Sync.MaxRetries = %d, want 5", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Sync.Interval = %v, want 1m", cfg.Sync.Interval)
	}
	if cfg.Sync.PurgeRetention != 7*24*time.Hour {
		t.Errorf("Sync.PurgeRetention = %v, want 168h", cfg.Sync.PurgeRetention)
	}
	if cfg.RemoteConfigured() {
		t.Error("RemoteConfigured() = true with no backend set")
	}
}

// TestLoad_ConfigFile tests reading settings from the config file
func TestLoad_ConfigFile(t *testing.T) {
	home := isolateHome(t)

	dataDir := filepath.Join(home, ".sprout")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	content := `remote:
  base_url: https://example.supabase.co
  api_key: abc123
sync:
  max_retries: 9
  stale_after: 48h
`
	if err := os.WriteFile(filepath.Join(dataDir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Remote.BaseURL != "https://example.supabase.co" {
		t.Errorf("Remote.BaseURL = %q", cfg.Remote.BaseURL)
	}
	if !cfg.RemoteConfigured() {
		t.Error("RemoteConfigured() = false, want true")
	}
	if cfg.Sync.MaxRetries != 9 {
		t.Errorf("Sync.MaxRetries = %d, want 9", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.StaleAfter != 48*time.Hour {
		t.Errorf("Sync.StaleAfter = %v, want 48h", cfg.Sync.StaleAfter)
	}
	// Untouched keys keep their defaults.
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Sync.Interval = %v, want 1m", cfg.Sync.Interval)
	}
}

// TestLoad_MalformedFile tests that a broken config file surfaces an error
func TestLoad_MalformedFile(t *testing.T) {
	home := isolateHome(t)

	dataDir := filepath.Join(home, ".sprout")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "config.yaml"), []byte("remote: [broken"), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	if _, err := Load(); err == nil {
		t.Error("Load() accepted a malformed config file")
	}
}
