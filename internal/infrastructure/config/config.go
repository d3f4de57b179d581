package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Roster backends.
const (
	RosterBackendMemory = "memory"
	RosterBackendSQLite = "sqlite"
)

// minJWTSecretLength is the shortest signing secret accepted for either key class.
const minJWTSecretLength = 32

// Config is the root configuration structure for the Bulles portal.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	Roster    RosterConfig    `yaml:"roster"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies the school deployment.
type SiteConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RosterConfig selects where the class roster and reports are read from.
type RosterConfig struct {
	// Backend is "memory" (fixtures held in process) or "sqlite" (seeded into the database).
	Backend string `yaml:"backend"`

	// AdminPassword seeds the "admin" account. No admin is created when empty.
	AdminPassword string `yaml:"admin_password"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	TLS          TLSConfig        `yaml:"tls"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	CORS         CORSConfig       `yaml:"cors"`
	StaticDir    string           `yaml:"static_dir"`
	MaxBodyBytes int64            `yaml:"max_body_bytes"`

	// DevMode adds internal error detail to 500 responses.
	DevMode bool `yaml:"dev_mode"`
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

// WebSocketConfig contains session-event WebSocket settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// Auth events are published only when Enabled is set.
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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
	JWT        JWTConfig        `yaml:"jwt"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Revocation RevocationConfig `yaml:"revocation"`
	Audit      AuditConfig      `yaml:"audit"`
}

// JWTConfig contains token signing settings.
// Access and refresh tokens are signed with separate secrets.
type JWTConfig struct {
	AccessSecret    string        `yaml:"access_secret"`
	RefreshSecret   string        `yaml:"refresh_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// RateLimitConfig limits API requests per client address.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// RevocationConfig controls the server-side session denylist.
// When disabled, logout is stateless and tokens live until they expire.
type RevocationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AuditConfig controls the security activity log.
type AuditConfig struct {
	// Retain is the number of most recent entries kept after pruning.
	Retain int `yaml:"retain"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BULLES_SECTION_KEY
// For example: BULLES_DATABASE_PATH, BULLES_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the portal defaults.
// Secrets are deliberately left empty so Validate forces them to be supplied.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Name:    "Les Bulles de Joie",
			Version: "1.0.0",
		},
		Database: DatabaseConfig{
			Path:        "./data/bulles.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Roster: RosterConfig{
			Backend: RosterBackendSQLite,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
			MaxBodyBytes: 10 << 10,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "bulles-portal",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  time.Hour,
				RefreshTokenTTL: 7 * 24 * time.Hour,
			},
			RateLimit: RateLimitConfig{
				Enabled:  true,
				Requests: 100,
				Window:   15 * time.Minute,
			},
			Audit: AuditConfig{
				Retain: 1000,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BULLES_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Database
	if v := os.Getenv("BULLES_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Roster
	if v := os.Getenv("BULLES_ROSTER_BACKEND"); v != "" {
		cfg.Roster.Backend = v
	}
	if v := os.Getenv("BULLES_ADMIN_PASSWORD"); v != "" {
		cfg.Roster.AdminPassword = v
	}

	// API
	if v := os.Getenv("BULLES_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("BULLES_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BULLES_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("BULLES_ALLOWED_ORIGINS"); v != "" {
		cfg.API.CORS.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("BULLES_STATIC_DIR"); v != "" {
		cfg.API.StaticDir = v
	}
	if v := os.Getenv("BULLES_DEV_MODE"); v != "" {
		devMode, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BULLES_DEV_MODE: %w", err)
		}
		cfg.API.DevMode = devMode
	}

	// MQTT
	if v := os.Getenv("BULLES_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BULLES_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BULLES_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BULLES_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - signing secrets (always override in production)
	if v := os.Getenv("BULLES_JWT_SECRET"); v != "" {
		cfg.Security.JWT.AccessSecret = v
	}
	if v := os.Getenv("BULLES_JWT_REFRESH_SECRET"); v != "" {
		cfg.Security.JWT.RefreshSecret = v
	}
	if v := os.Getenv("BULLES_ACCESS_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BULLES_ACCESS_TOKEN_TTL: %w", err)
		}
		cfg.Security.JWT.AccessTokenTTL = d
	}
	if v := os.Getenv("BULLES_REFRESH_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BULLES_REFRESH_TOKEN_TTL: %w", err)
		}
		cfg.Security.JWT.RefreshTokenTTL = d
	}

	return nil
}

// splitList splits a comma-separated value and drops empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	switch c.Roster.Backend {
	case RosterBackendMemory, RosterBackendSQLite:
	default:
		errs = append(errs, fmt.Sprintf("roster.backend must be %q or %q", RosterBackendMemory, RosterBackendSQLite))
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.MaxBodyBytes <= 0 {
		errs = append(errs, "api.max_body_bytes must be positive")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.Security.JWT.validate()...)

	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.Requests <= 0 || c.Security.RateLimit.Window <= 0) {
		errs = append(errs, "security.rate_limit.requests and security.rate_limit.window must be positive")
	}
	if c.Security.Audit.Retain < 0 {
		errs = append(errs, "security.audit.retain must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate checks both signing secrets and token lifetimes.
func (j JWTConfig) validate() []string {
	var errs []string

	if j.AccessSecret == "" {
		errs = append(errs, "security.jwt.access_secret is required (set BULLES_JWT_SECRET environment variable)")
	} else if len(j.AccessSecret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.access_secret must be at least 32 characters")
	}

	if j.RefreshSecret == "" {
		errs = append(errs, "security.jwt.refresh_secret is required (set BULLES_JWT_REFRESH_SECRET environment variable)")
	} else if len(j.RefreshSecret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.refresh_secret must be at least 32 characters")
	}

	if j.AccessSecret != "" && j.AccessSecret == j.RefreshSecret {
		errs = append(errs, "security.jwt.access_secret and security.jwt.refresh_secret must differ")
	}

	if j.AccessTokenTTL <= 0 {
		errs = append(errs, "security.jwt.access_token_ttl must be positive")
	}
	if j.RefreshTokenTTL <= j.AccessTokenTTL {
		errs = append(errs, "security.jwt.refresh_token_ttl must be longer than access_token_ttl")
	}

	return errs
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
