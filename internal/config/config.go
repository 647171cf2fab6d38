// Package config handles loading and managing mailpod configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the mailpod configuration. OAuth client credentials are
// deliberately absent: those come from the environment only.
type Config struct {
	Data  DataConfig  `toml:"data"`
	Sync  SyncConfig  `toml:"sync"`
	Store StoreConfig `toml:"store"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// SyncConfig holds sync-related configuration.
type SyncConfig struct {
	RateLimitQPS float64 `toml:"rate_limit_qps"`
	FetchLimit   int     `toml:"fetch_limit"`
}

// StoreConfig holds storage engine configuration.
type StoreConfig struct {
	// CryptoBackend selects the token encryption cipher for new writes:
	// "secretbox" (default) or "aesgcm". Reads handle either.
	CryptoBackend string `toml:"crypto_backend"`
}

// DefaultHome returns the default mailpod home directory.
// Respects the MAILPOD_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILPOD_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailpod"
	}
	return filepath.Join(home, ".mailpod")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.mailpod/config.toml).
// The file is optional; absent means defaults.
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Sync: SyncConfig{
			RateLimitQPS: 2,
			FetchLimit:   50,
		},
		Store: StoreConfig{
			CryptoBackend: "secretbox",
		},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)

	return cfg, nil
}

// DataDir returns the directory holding the database files.
func (c *Config) DataDir() string {
	if c.Data.DataDir != "" {
		return c.Data.DataDir
	}
	return c.HomeDir
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
