package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for RemoteLink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	Registry   RegistryConfig   `yaml:"registry"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	NATS       NATSConfig       `yaml:"nats"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Pairing    PairingConfig    `yaml:"pairing"`
	Connection ConnectionConfig `yaml:"connection"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Security   SecurityConfig   `yaml:"security"`
}

// SiteConfig identifies this installation in logs, MQTT client IDs and telemetry tags.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
// Only used when registry.backend is "sqlite".
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// Registry backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// RegistryConfig selects the device registry's backing store.
type RegistryConfig struct {
	Backend string `yaml:"backend"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// NATSConfig contains NATS connection settings for the nats transport.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	ReconnectWait int    `yaml:"reconnect_wait"` // seconds
	MaxReconnects int    `yaml:"max_reconnects"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	TLS          TLSConfig        `yaml:"tls"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	CORS         CORSConfig       `yaml:"cors"`
	MaxBodyBytes int64            `yaml:"max_body_bytes"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for command telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Discovery sources.
const (
	SourceCatalog = "catalog"
	SourceMQTT    = "mqtt"
)

// DiscoveryConfig configures the discovery engine and its sources.
type DiscoveryConfig struct {
	Sources []string `yaml:"sources"`

	// DefaultTimeoutMS bounds a scan whose request gives no timeout.
	DefaultTimeoutMS int `yaml:"default_timeout_ms"`

	// LatencyMS is the simulated duration of a catalog sweep.
	LatencyMS int `yaml:"latency_ms"`

	// SettleMS is how long the MQTT source waits for announcements after probing.
	SettleMS int `yaml:"settle_ms"`

	Catalog []CatalogEntry `yaml:"catalog"`
}

// CatalogEntry is one device served by the catalog source.
type CatalogEntry struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Model        string   `yaml:"model"`
	Address      string   `yaml:"address"`
	Online       bool     `yaml:"online"`
	Capabilities []string `yaml:"capabilities"`
}

// Pairing verifiers.
const (
	VerifierSharedSecret = "shared_secret"
	VerifierIssued       = "issued"
)

// PairingConfig selects how pairing PINs are verified.
type PairingConfig struct {
	Verifier     string `yaml:"verifier"`
	SharedSecret string `yaml:"shared_secret"`

	// PINTTL is how long an issued PIN stays valid (seconds).
	PINTTL int `yaml:"pin_ttl"`

	// ExposePIN enables the diagnostic generate-pin endpoint.
	ExposePIN bool `yaml:"expose_pin"`
}

// Connection transports.
const (
	TransportSimulated = "simulated"
	TransportMQTT      = "mqtt"
	TransportNATS      = "nats"
)

// ConnectionConfig selects and tunes the command transport.
type ConnectionConfig struct {
	Transport string `yaml:"transport"`

	// LatencyScale multiplies the simulated per-kind latency; 0 disables it.
	LatencyScale float64 `yaml:"latency_scale"`

	// OpenTimeoutMS bounds opening a link to a device.
	OpenTimeoutMS int `yaml:"open_timeout_ms"`
}

// DispatchConfig tunes the command dispatcher.
type DispatchConfig struct {
	TimeoutMS           int  `yaml:"timeout_ms"`
	EnforceCapabilities bool `yaml:"enforce_capabilities"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT         JWTConfig         `yaml:"jwt"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	Issuer         string `yaml:"issuer"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// EntitlementConfig gates pairing and control routes on an entitled caller.
type EntitlementConfig struct {
	Required bool `yaml:"required"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern REMOTELINK_SECTION_KEY,
// for example REMOTELINK_API_PORT or REMOTELINK_CONNECTION_TRANSPORT.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied, for running without a config file.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// ReferenceCatalog returns the three reference televisions: two online, one offline.
func ReferenceCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			ID:           "1",
			Name:         "Living Room TV",
			Model:        "Samsung Smart TV",
			Address:      "192.168.1.100",
			Online:       true,
			Capabilities: []string{"power", "volume", "channel", "directional", "text", "app-launch"},
		},
		{
			ID:           "2",
			Name:         "Bedroom TV",
			Model:        "LG Android TV",
			Address:      "192.168.1.101",
			Online:       true,
			Capabilities: []string{"power", "volume", "channel", "directional", "text", "app-launch", "voice"},
		},
		{
			ID:           "3",
			Name:         "Kitchen TV",
			Model:        "Sony Bravia",
			Address:      "192.168.1.102",
			Online:       false,
			Capabilities: []string{"power", "volume", "channel"},
		},
	}
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "home",
			Name: "RemoteLink",
		},
		Database: DatabaseConfig{
			Path:        "./data/remotelink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Registry: RegistryConfig{
			Backend: BackendMemory,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "remotelink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "remotelink-core",
			ReconnectWait: 2,
			MaxReconnects: 60,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				MaxAge:         300,
			},
			MaxBodyBytes: 1 << 20,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "remotelink",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Discovery: DiscoveryConfig{
			Sources:          []string{SourceCatalog},
			DefaultTimeoutMS: 5000,
			LatencyMS:        1000,
			SettleMS:         500,
			Catalog:          ReferenceCatalog(),
		},
		Pairing: PairingConfig{
			Verifier:     VerifierSharedSecret,
			SharedSecret: "1234",
			PINTTL:       300,
		},
		Connection: ConnectionConfig{
			Transport:     TransportSimulated,
			LatencyScale:  1,
			OpenTimeoutMS: 3000,
		},
		Dispatch: DispatchConfig{
			TimeoutMS: 5000,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:         "remotelink",
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: REMOTELINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	envString("REMOTELINK_DATABASE_PATH", &cfg.Database.Path)
	envString("REMOTELINK_REGISTRY_BACKEND", &cfg.Registry.Backend)

	envBool("REMOTELINK_MQTT_ENABLED", &cfg.MQTT.Enabled)
	envString("REMOTELINK_MQTT_HOST", &cfg.MQTT.Broker.Host)
	envInt("REMOTELINK_MQTT_PORT", &cfg.MQTT.Broker.Port)
	envString("REMOTELINK_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	envString("REMOTELINK_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	envBool("REMOTELINK_NATS_ENABLED", &cfg.NATS.Enabled)
	envString("REMOTELINK_NATS_URL", &cfg.NATS.URL)

	envString("REMOTELINK_API_HOST", &cfg.API.Host)
	envInt("REMOTELINK_API_PORT", &cfg.API.Port)

	envBool("REMOTELINK_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	envString("REMOTELINK_INFLUXDB_URL", &cfg.InfluxDB.URL)
	envString("REMOTELINK_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	envString("REMOTELINK_LOG_LEVEL", &cfg.Logging.Level)

	envString("REMOTELINK_PAIRING_VERIFIER", &cfg.Pairing.Verifier)
	envString("REMOTELINK_PAIRING_SECRET", &cfg.Pairing.SharedSecret)
	envBool("REMOTELINK_PAIRING_EXPOSE_PIN", &cfg.Pairing.ExposePIN)

	envString("REMOTELINK_CONNECTION_TRANSPORT", &cfg.Connection.Transport)
	if v := os.Getenv("REMOTELINK_CONNECTION_LATENCY_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Connection.LatencyScale = f
		}
	}

	envInt("REMOTELINK_DISPATCH_TIMEOUT_MS", &cfg.Dispatch.TimeoutMS)

	// Security - JWT secret (always override in production)
	envString("REMOTELINK_JWT_SECRET", &cfg.Security.JWT.Secret)
	envBool("REMOTELINK_ENTITLEMENT_REQUIRED", &cfg.Security.Entitlement.Required)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envInt and envBool ignore unparseable values; Validate reports the
// resulting configuration if it is unusable.
func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// minJWTSecretLength is the shortest HS256 secret accepted.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Registry.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	default:
		errs = append(errs, "registry.backend must be memory or sqlite")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	errs = append(errs, c.validateDiscovery()...)
	errs = append(errs, c.validateSession()...)

	if c.Security.Entitlement.Required {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when entitlement is enforced (set REMOTELINK_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateDiscovery() []string {
	var errs []string

	if len(c.Discovery.Sources) == 0 {
		errs = append(errs, "discovery.sources must name at least one source")
	}
	for _, s := range c.Discovery.Sources {
		switch s {
		case SourceCatalog:
		case SourceMQTT:
			if !c.MQTT.Enabled {
				errs = append(errs, "discovery source mqtt requires mqtt.enabled")
			}
		default:
			errs = append(errs, fmt.Sprintf("discovery.sources: unknown source %q", s))
		}
	}
	if c.Discovery.DefaultTimeoutMS <= 0 {
		errs = append(errs, "discovery.default_timeout_ms must be positive")
	}

	seen := make(map[string]bool, len(c.Discovery.Catalog))
	for i, e := range c.Discovery.Catalog {
		if e.ID == "" || e.Name == "" {
			errs = append(errs, fmt.Sprintf("discovery.catalog[%d]: id and name are required", i))
			continue
		}
		if seen[e.ID] {
			errs = append(errs, fmt.Sprintf("discovery.catalog[%d]: duplicate id %q", i, e.ID))
		}
		seen[e.ID] = true
	}
	return errs
}

func (c *Config) validateSession() []string {
	var errs []string

	switch c.Pairing.Verifier {
	case VerifierSharedSecret:
		if !isPIN(c.Pairing.SharedSecret) {
			errs = append(errs, "pairing.shared_secret must be 4 digits")
		}
	case VerifierIssued:
		if c.Pairing.PINTTL <= 0 {
			errs = append(errs, "pairing.pin_ttl must be positive for the issued verifier")
		}
	default:
		errs = append(errs, "pairing.verifier must be shared_secret or issued")
	}

	transports := []string{TransportSimulated, TransportMQTT, TransportNATS}
	if !slices.Contains(transports, c.Connection.Transport) {
		errs = append(errs, "connection.transport must be simulated, mqtt or nats")
	}
	if c.Connection.Transport == TransportMQTT && !c.MQTT.Enabled {
		errs = append(errs, "connection.transport mqtt requires mqtt.enabled")
	}
	if c.Connection.Transport == TransportNATS && !c.NATS.Enabled {
		errs = append(errs, "connection.transport nats requires nats.enabled")
	}
	if c.Connection.LatencyScale < 0 {
		errs = append(errs, "connection.latency_scale must not be negative")
	}

	if c.Dispatch.TimeoutMS <= 0 {
		errs = append(errs, "dispatch.timeout_ms must be positive")
	}
	return errs
}

func isPIN(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// DispatchTimeout returns the fixed per-command dispatch timeout.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Dispatch.TimeoutMS) * time.Millisecond
}

// ScanTimeout returns the default discovery scan bound.
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.Discovery.DefaultTimeoutMS) * time.Millisecond
}
