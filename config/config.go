// Package config centralises runtime configuration for the walrus client.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the runtime environment.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// ServerConfig configures the exchange session endpoint.
type ServerConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	// MaxReconnectInterval caps the reconnect backoff.
	MaxReconnectInterval time.Duration
}

// ArchiveConfig configures the optional trade and withdrawal archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// TelemetryConfig configures OTLP metric export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
	OTLPInsecure bool   `yaml:"otlpInsecure"`
}

// Settings is the configuration tree loaded from defaults, YAML and env vars.
type Settings struct {
	Environment Environment
	Server      ServerConfig
	Archive     ArchiveConfig
	Telemetry   TelemetryConfig
	PageSize    int
}

// Default returns the default configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Server: ServerConfig{
			URL:                  "wss://api.walrus.exchange/ws",
			HandshakeTimeout:     10 * time.Second,
			MaxReconnectInterval: 30 * time.Second,
		},
		Archive: ArchiveConfig{Enabled: false, DSN: ""},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  "walrus-client",
			OTLPInsecure: false,
		},
		PageSize: 50,
	}
}

// Load builds the configuration with precedence: defaults, then YAML when the
// file exists, then environment variables, then validation.
func Load(path string) (Settings, error) {
	cfg := Default()

	if err := cfg.loadYAML(path); err != nil && !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("load yaml config: %w", err)
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return Settings{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// settingsYAML mirrors Settings with durations as strings.
type settingsYAML struct {
	Environment string `yaml:"environment"`
	Server      struct {
		URL                  string `yaml:"url"`
		HandshakeTimeout     string `yaml:"handshakeTimeout"`
		MaxReconnectInterval string `yaml:"maxReconnectInterval"`
	} `yaml:"server"`
	Archive   *ArchiveConfig   `yaml:"archive"`
	Telemetry *TelemetryConfig `yaml:"telemetry"`
	PageSize  int              `yaml:"pageSize"`
}

func (c *Settings) loadYAML(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = os.Getenv("WALRUS_CONFIG")
	}
	if path == "" {
		path = "config/walrus.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var raw settingsYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if raw.Environment != "" {
		c.Environment = Environment(strings.ToLower(raw.Environment))
	}
	if raw.Server.URL != "" {
		c.Server.URL = raw.Server.URL
	}
	if err := mergeDuration(&c.Server.HandshakeTimeout, raw.Server.HandshakeTimeout); err != nil {
		return fmt.Errorf("parse %s: handshakeTimeout: %w", path, err)
	}
	if err := mergeDuration(&c.Server.MaxReconnectInterval, raw.Server.MaxReconnectInterval); err != nil {
		return fmt.Errorf("parse %s: maxReconnectInterval: %w", path, err)
	}
	if raw.Archive != nil {
		c.Archive = *raw.Archive
	}
	if raw.Telemetry != nil {
		c.Telemetry = *raw.Telemetry
	}
	if raw.PageSize > 0 {
		c.PageSize = raw.PageSize
	}
	return nil
}

func mergeDuration(dst *time.Duration, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func (c *Settings) loadEnv() {
	if v := strings.TrimSpace(os.Getenv("WALRUS_ENV")); v != "" {
		c.Environment = Environment(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("WALRUS_SERVER_URL")); v != "" {
		c.Server.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("WALRUS_ARCHIVE_DSN")); v != "" {
		c.Archive.Enabled = true
		c.Archive.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("WALRUS_PAGE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PageSize = n
		}
	}
}

// Validate rejects configurations the client cannot run with.
func (c *Settings) Validate() error {
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("server url must be a websocket endpoint, got %q", c.Server.URL)
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.DSN) == "" {
		return fmt.Errorf("archive enabled without a dsn")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if c.Server.MaxReconnectInterval <= 0 {
		c.Server.MaxReconnectInterval = 30 * time.Second
	}
	return nil
}
