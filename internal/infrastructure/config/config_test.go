package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "flat-3b"
registry:
  backend: "sqlite"
database:
  path: "/tmp/remotelink-test.db"
mqtt:
  enabled: true
  broker:
    host: "broker.lan"
    port: 1883
discovery:
  sources: ["catalog", "mqtt"]
  catalog:
    - id: "lounge"
      name: "Lounge TV"
      model: "Philips Android TV"
      address: "10.0.0.20"
      online: true
      capabilities: ["power", "volume"]
pairing:
  verifier: "issued"
  pin_ttl: 120
connection:
  transport: "mqtt"
dispatch:
  timeout_ms: 2500
  enforce_capabilities: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "flat-3b" {
		t.Errorf("Site.ID = %q, want flat-3b", cfg.Site.ID)
	}
	if cfg.Registry.Backend != BackendSQLite {
		t.Errorf("Registry.Backend = %q, want sqlite", cfg.Registry.Backend)
	}
	if cfg.MQTT.Broker.Host != "broker.lan" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if len(cfg.Discovery.Catalog) != 1 || cfg.Discovery.Catalog[0].ID != "lounge" {
		t.Errorf("Discovery.Catalog = %+v, want the configured entry only", cfg.Discovery.Catalog)
	}
	if cfg.DispatchTimeout() != 2500*time.Millisecond {
		t.Errorf("DispatchTimeout() = %v", cfg.DispatchTimeout())
	}
	if !cfg.Dispatch.EnforceCapabilities {
		t.Error("EnforceCapabilities should be true")
	}

	// Unset values keep their defaults.
	if cfg.API.Port != 8000 {
		t.Errorf("API.Port = %d, want default 8000", cfg.API.Port)
	}
	if cfg.ScanTimeout() != 5*time.Second {
		t.Errorf("ScanTimeout() = %v, want default 5s", cfg.ScanTimeout())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "site.id is required") {
		t.Errorf("Load() error = %v, want site.id validation error", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Registry.Backend = "redis" }, "registry.backend"},
		{"sqlite without path", func(c *Config) {
			c.Registry.Backend = BackendSQLite
			c.Database.Path = ""
		}, "database.path"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad port", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"no sources", func(c *Config) { c.Discovery.Sources = nil }, "discovery.sources"},
		{"unknown source", func(c *Config) { c.Discovery.Sources = []string{"ssdp"} }, "unknown source"},
		{"mqtt source without mqtt", func(c *Config) { c.Discovery.Sources = []string{SourceMQTT} }, "requires mqtt.enabled"},
		{"duplicate catalog id", func(c *Config) {
			c.Discovery.Catalog = append(c.Discovery.Catalog, c.Discovery.Catalog[0])
		}, "duplicate id"},
		{"shared secret not 4 digits", func(c *Config) { c.Pairing.SharedSecret = "12a4" }, "pairing.shared_secret"},
		{"issued without ttl", func(c *Config) {
			c.Pairing.Verifier = VerifierIssued
			c.Pairing.PINTTL = 0
		}, "pairing.pin_ttl"},
		{"unknown verifier", func(c *Config) { c.Pairing.Verifier = "oauth" }, "pairing.verifier"},
		{"unknown transport", func(c *Config) { c.Connection.Transport = "adb" }, "connection.transport"},
		{"nats transport without nats", func(c *Config) { c.Connection.Transport = TransportNATS }, "requires nats.enabled"},
		{"negative latency scale", func(c *Config) { c.Connection.LatencyScale = -1 }, "latency_scale"},
		{"zero dispatch timeout", func(c *Config) { c.Dispatch.TimeoutMS = 0 }, "dispatch.timeout_ms"},
		{"entitlement without secret", func(c *Config) { c.Security.Entitlement.Required = true }, "security.jwt.secret is required"},
		{"entitlement with short secret", func(c *Config) {
			c.Security.Entitlement.Required = true
			c.Security.JWT.Secret = "short"
		}, "at least 32"},
		{"entitlement with secret", func(c *Config) {
			c.Security.Entitlement.Required = true
			c.Security.JWT.Secret = validJWTSecret
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 70000

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	if !strings.Contains(err.Error(), "site.id") || !strings.Contains(err.Error(), "api.port") {
		t.Errorf("Validate() error = %v, want both problems reported", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{API: APIConfig{Timeouts: APITimeoutConfig{Read: 10, Write: 20, Idle: 30}}}

	if got := cfg.GetReadTimeout(); got != 10*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 20*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 20s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 30*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 30s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("REMOTELINK_API_PORT", "9100")
	t.Setenv("REMOTELINK_CONNECTION_TRANSPORT", "nats")
	t.Setenv("REMOTELINK_CONNECTION_LATENCY_SCALE", "0")
	t.Setenv("REMOTELINK_NATS_ENABLED", "true")
	t.Setenv("REMOTELINK_PAIRING_EXPOSE_PIN", "1")
	t.Setenv("REMOTELINK_JWT_SECRET", "env-secret")
	t.Setenv("REMOTELINK_DISPATCH_TIMEOUT_MS", "not-a-number")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want 9100", cfg.API.Port)
	}
	if cfg.Connection.Transport != TransportNATS || !cfg.NATS.Enabled {
		t.Errorf("transport = %q nats = %v", cfg.Connection.Transport, cfg.NATS.Enabled)
	}
	if cfg.Connection.LatencyScale != 0 {
		t.Errorf("LatencyScale = %v, want 0", cfg.Connection.LatencyScale)
	}
	if !cfg.Pairing.ExposePIN {
		t.Error("ExposePIN should be true")
	}
	if cfg.Security.JWT.Secret != "env-secret" {
		t.Errorf("JWT.Secret = %q", cfg.Security.JWT.Secret)
	}
	if cfg.Dispatch.TimeoutMS != 5000 {
		t.Errorf("Dispatch.TimeoutMS = %d, want default kept on bad input", cfg.Dispatch.TimeoutMS)
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	if cfg.Registry.Backend != BackendMemory {
		t.Errorf("Registry.Backend = %q, want memory", cfg.Registry.Backend)
	}
	if cfg.Pairing.SharedSecret != "1234" {
		t.Errorf("Pairing.SharedSecret = %q, want 1234", cfg.Pairing.SharedSecret)
	}
	if cfg.Connection.Transport != TransportSimulated {
		t.Errorf("Connection.Transport = %q, want simulated", cfg.Connection.Transport)
	}

	online := 0
	for _, e := range cfg.Discovery.Catalog {
		if e.Online {
			online++
		}
	}
	if len(cfg.Discovery.Catalog) != 3 || online != 2 {
		t.Errorf("reference catalog = %d devices, %d online; want 3 and 2", len(cfg.Discovery.Catalog), online)
	}
}
