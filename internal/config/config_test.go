package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MAILPOD_HOME", tmpDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	if cfg.Data.DataDir != tmpDir {
		t.Errorf("Data.DataDir = %q, want %q", cfg.Data.DataDir, tmpDir)
	}
	if cfg.Sync.RateLimitQPS != 2 {
		t.Errorf("Sync.RateLimitQPS = %v, want 2", cfg.Sync.RateLimitQPS)
	}
	if cfg.Sync.FetchLimit != 50 {
		t.Errorf("Sync.FetchLimit = %d, want 50", cfg.Sync.FetchLimit)
	}
	if cfg.Store.CryptoBackend != "secretbox" {
		t.Errorf("Store.CryptoBackend = %q, want secretbox", cfg.Store.CryptoBackend)
	}
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MAILPOD_HOME", tmpDir)

	configContent := `
[data]
data_dir = "~/mailpod-data"

[sync]
rate_limit_qps = 0.5
fetch_limit = 200

[store]
crypto_backend = "aesgcm"
`
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir() error = %v", err)
	}
	if want := filepath.Join(home, "mailpod-data"); cfg.Data.DataDir != want {
		t.Errorf("Data.DataDir = %q, want %q", cfg.Data.DataDir, want)
	}
	if cfg.Sync.RateLimitQPS != 0.5 {
		t.Errorf("Sync.RateLimitQPS = %v, want 0.5", cfg.Sync.RateLimitQPS)
	}
	if cfg.Sync.FetchLimit != 200 {
		t.Errorf("Sync.FetchLimit = %d, want 200", cfg.Sync.FetchLimit)
	}
	if cfg.Store.CryptoBackend != "aesgcm" {
		t.Errorf("Store.CryptoBackend = %q, want aesgcm", cfg.Store.CryptoBackend)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("MAILPOD_HOME", homeDir)

	otherDir := t.TempDir()
	configPath := filepath.Join(otherDir, "custom.toml")
	if err := os.WriteFile(configPath, []byte("[sync]\nfetch_limit = 25\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load(%q) error = %v", configPath, err)
	}

	if cfg.Sync.FetchLimit != 25 {
		t.Errorf("Sync.FetchLimit = %d, want 25", cfg.Sync.FetchLimit)
	}
	// Untouched sections keep defaults.
	if cfg.Sync.RateLimitQPS != 2 {
		t.Errorf("Sync.RateLimitQPS = %v, want 2", cfg.Sync.RateLimitQPS)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MAILPOD_HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[data\ndata_dir = oops"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(""); err == nil {
		t.Fatal("Load() should fail on malformed TOML")
	}
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MAILPOD_HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[server]\napi_port = 9090\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(""); err != nil {
		t.Fatalf("Load() should tolerate unknown sections, got %v", err)
	}
}

func TestDataDirFallsBackToHome(t *testing.T) {
	cfg := &Config{HomeDir: "/tmp/mp-home"}
	if got := cfg.DataDir(); got != "/tmp/mp-home" {
		t.Errorf("DataDir() = %q, want /tmp/mp-home", got)
	}
	cfg.Data.DataDir = "/elsewhere"
	if got := cfg.DataDir(); got != "/elsewhere" {
		t.Errorf("DataDir() = %q, want /elsewhere", got)
	}
}

func TestDefaultHome(t *testing.T) {
	t.Setenv("MAILPOD_HOME", "/srv/mailpod")
	if got := DefaultHome(); got != "/srv/mailpod" {
		t.Errorf("DefaultHome() = %q, want /srv/mailpod", got)
	}

	t.Setenv("MAILPOD_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir() error = %v", err)
	}
	if got, want := DefaultHome(), filepath.Join(home, ".mailpod"); got != want {
		t.Errorf("DefaultHome() = %q, want %q", got, want)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir() error = %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/data", filepath.Join(home, "data")},
		{"/var/lib/mailpod", "/var/lib/mailpod"},
		{"relative/path", "relative/path"},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
