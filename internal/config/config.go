// Package config loads the service's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file under the config directory.
const FileName = "config.toml"

// Config represents user-facing configuration in TOML format.
type Config struct {
	// DataDir roots the database and blob storage.
	// Defaults to ~/.hanisearch.
	DataDir string `toml:"data_dir"`

	Server ServerConfig `toml:"server"`
	Search SearchConfig `toml:"search"`
	Inbox  InboxConfig  `toml:"inbox"`
	Logs   LogConfig    `toml:"logs"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, host:port.
	Addr string `toml:"addr"`

	// AuthToken, when set, requires a bearer token on every API call.
	AuthToken string `toml:"auth_token"`
}

// SearchConfig controls the index and query behavior.
type SearchConfig struct {
	// MaxTokenLen caps the n-gram length. 0 means the built-in cap.
	MaxTokenLen int `toml:"max_token_len"`

	// MaxIndexMB caps a document's serialized index size.
	MaxIndexMB int `toml:"max_index_mb"`

	// DebounceMS is the keystroke settle time before a search commits.
	DebounceMS int `toml:"debounce_ms"`

	// BuildRatePerSec paces index builds, lines per second. 0 disables
	// pacing.
	BuildRatePerSec int `toml:"build_rate_per_sec"`
}

// InboxConfig controls the drop-folder watcher.
type InboxConfig struct {
	// Dir is the watched folder. Empty disables the watcher.
	Dir string `toml:"dir"`

	// DebounceMS coalesces rapid file events per path.
	DebounceMS int `toml:"debounce_ms"`
}

// LogConfig controls file logging.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".hanisearch"),
		Server:  ServerConfig{Addr: "127.0.0.1:8490"},
		Search: SearchConfig{
			MaxTokenLen: 3,
			MaxIndexMB:  8,
			DebounceMS:  300,
		},
		Inbox: InboxConfig{DebounceMS: 300},
		Logs: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
	}
}

// Path returns the config file location, honoring HANISEARCH_CONFIG.
func Path() (string, error) {
	if p := os.Getenv("HANISEARCH_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home dir: %w", err)
	}
	return filepath.Join(home, ".hanisearch", FileName), nil
}

// Load reads the config file, filling unset fields with defaults. A
// missing file is not an error; a malformed one is, with defaults
// still returned so the caller can keep running.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return Default(), fmt.Errorf("config.toml parse error: %w", err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Search.MaxTokenLen <= 0 {
		c.Search.MaxTokenLen = d.Search.MaxTokenLen
	}
	if c.Search.MaxIndexMB <= 0 {
		c.Search.MaxIndexMB = d.Search.MaxIndexMB
	}
	if c.Search.DebounceMS <= 0 {
		c.Search.DebounceMS = d.Search.DebounceMS
	}
	if c.Inbox.DebounceMS <= 0 {
		c.Inbox.DebounceMS = d.Inbox.DebounceMS
	}
	if c.Logs.Level == "" {
		c.Logs.Level = d.Logs.Level
	}
	if c.Logs.Format == "" {
		c.Logs.Format = d.Logs.Format
	}
	if c.Logs.MaxSizeMB <= 0 {
		c.Logs.MaxSizeMB = d.Logs.MaxSizeMB
	}
	if c.Logs.MaxBackups <= 0 {
		c.Logs.MaxBackups = d.Logs.MaxBackups
	}
	if c.Logs.MaxAgeDays <= 0 {
		c.Logs.MaxAgeDays = d.Logs.MaxAgeDays
	}
}

// Save writes the config back to its file.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return nil
}
