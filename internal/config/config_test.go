package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HANISEARCH_CONFIG", filepath.Join(t.TempDir(), "absent.toml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8490" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Search.MaxTokenLen != 3 || cfg.Search.DebounceMS != 300 {
		t.Errorf("search defaults = %+v", cfg.Search)
	}
}

func TestLoadMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
data_dir = "/tmp/hani-test"

[server]
addr = "0.0.0.0:9000"

[search]
max_index_mb = 16
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HANISEARCH_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/hani-test" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Search.MaxIndexMB != 16 {
		t.Errorf("MaxIndexMB = %d", cfg.Search.MaxIndexMB)
	}
	// Unset fields keep defaults.
	if cfg.Search.MaxTokenLen != 3 {
		t.Errorf("MaxTokenLen = %d", cfg.Search.MaxTokenLen)
	}
	if cfg.Logs.Level != "info" {
		t.Errorf("Level = %q", cfg.Logs.Level)
	}
}

func TestLoadMalformedReturnsErrorAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HANISEARCH_CONFIG", path)

	cfg, err := Load()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if cfg == nil || cfg.Server.Addr != "127.0.0.1:8490" {
		t.Errorf("defaults not returned on parse error: %+v", cfg)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	t.Setenv("HANISEARCH_CONFIG", path)

	cfg := Default()
	cfg.Server.AuthToken = "secret"
	cfg.Inbox.Dir = "/tmp/drop"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	back, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.Server.AuthToken != "secret" || back.Inbox.Dir != "/tmp/drop" {
		t.Errorf("round trip lost fields: %+v", back)
	}
}
