package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the device sync core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	Store      StoreConfig      `yaml:"store"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// SiteConfig identifies this deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// StoreConfig selects the realtime store backend.
type StoreConfig struct {
	// Driver is "sqlite" (default) or "memory".
	Driver string `yaml:"driver"`

	// SeedFile is an optional YAML file of provisioned serial numbers
	// loaded into the registry at startup.
	SeedFile string `yaml:"seed_file"`

	// SampleSerials provisions the built-in sample serials when true.
	SampleSerials bool `yaml:"sample_serials"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Namespace string              `yaml:"namespace"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	// Interval is the fixed delay between reconnect attempts (seconds).
	Interval int `yaml:"interval"`
	// MaxAttempts bounds consecutive reconnect attempts. 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`
}

// ReconcilerConfig contains optimistic update settings.
type ReconcilerConfig struct {
	// CommandTimeoutMS is how long an optimistic command waits for
	// telemetry confirmation before the view reverts.
	CommandTimeoutMS int `yaml:"command_timeout_ms"`

	// OfflineAfter marks a device offline when no telemetry arrived for
	// this many seconds. 0 disables the sweep.
	OfflineAfter int `yaml:"offline_after"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	Issuer         string `yaml:"issuer"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern DEVICESYNC_SECTION_KEY,
// for example DEVICESYNC_DATABASE_PATH or DEVICESYNC_MQTT_HOST.
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Device Sync",
		},
		Database: DatabaseConfig{
			Path:        "./data/devicesync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "devicesync-core",
			},
			QoS:       0,
			Namespace: "esp32",
			Reconnect: MQTTReconnectConfig{
				Interval:    5,
				MaxAttempts: 0,
			},
		},
		Reconciler: ReconcilerConfig{
			CommandTimeoutMS: 3000,
			OfflineAfter:     90,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:         "devicesync",
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies DEVICESYNC_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEVICESYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DEVICESYNC_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("DEVICESYNC_STORE_SEED_FILE"); v != "" {
		cfg.Store.SeedFile = v
	}

	if v := os.Getenv("DEVICESYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DEVICESYNC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("DEVICESYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DEVICESYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("DEVICESYNC_MQTT_NAMESPACE"); v != "" {
		cfg.MQTT.Namespace = v
	}

	if v := os.Getenv("DEVICESYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("DEVICESYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Always override the JWT secret in production.
	if v := os.Getenv("DEVICESYNC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite store")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or memory", c.Store.Driver))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Namespace == "" || strings.ContainsAny(c.MQTT.Namespace, "/+#") {
		errs = append(errs, "mqtt.namespace must be a single topic segment without wildcards")
	}
	if c.MQTT.Reconnect.Interval < 1 {
		errs = append(errs, "mqtt.reconnect.interval must be at least 1 second")
	}
	if c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect.max_attempts cannot be negative")
	}

	if c.Reconciler.CommandTimeoutMS < 100 {
		errs = append(errs, "reconciler.command_timeout_ms must be at least 100")
	}
	if c.Reconciler.OfflineAfter < 0 {
		errs = append(errs, "reconciler.offline_after must not be negative")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set DEVICESYNC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerURL returns the broker URL built from the broker section.
func (c MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if c.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Broker.Host, c.Broker.Port)
}

// ReconnectInterval returns the fixed reconnect backoff as a Duration.
func (c MQTTConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.Reconnect.Interval) * time.Second
}

// CommandTimeout returns the optimistic command timeout as a Duration.
func (c ReconcilerConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}

// OfflineAfterDuration returns the offline sweep threshold as a Duration.
func (c ReconcilerConfig) OfflineAfterDuration() time.Duration {
	return time.Duration(c.OfflineAfter) * time.Second
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
