package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "walrus.yaml")
	data := []byte(`
environment: dev
server:
  url: wss://test.local/ws
  maxReconnectInterval: 5s
archive:
  enabled: true
  dsn: postgres://localhost/walrus
pageSize: 10
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Environment != EnvDev {
		t.Errorf("environment = %q", cfg.Environment)
	}
	if cfg.Server.URL != "wss://test.local/ws" {
		t.Errorf("server url = %q", cfg.Server.URL)
	}
	if cfg.Server.MaxReconnectInterval != 5*time.Second {
		t.Errorf("reconnect interval = %v", cfg.Server.MaxReconnectInterval)
	}
	if !cfg.Archive.Enabled || cfg.Archive.DSN == "" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
	if cfg.PageSize != 10 {
		t.Errorf("page size = %d", cfg.PageSize)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	t.Setenv("WALRUS_SERVER_URL", "wss://env.local/ws")
	t.Setenv("WALRUS_PAGE_SIZE", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.URL != "wss://env.local/ws" {
		t.Errorf("server url = %q", cfg.Server.URL)
	}
	if cfg.PageSize != 7 {
		t.Errorf("page size = %d", cfg.PageSize)
	}
}

func TestValidateRejectsBadServerURL(t *testing.T) {
	cfg := Default()
	cfg.Server.URL = "http://not-a-socket"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateRejectsArchiveWithoutDSN(t *testing.T) {
	cfg := Default()
	cfg.Archive.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
