package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Registry  RegistryConfig  `yaml:"registry"`
	Cache     CacheConfig     `yaml:"cache"`
	Resources ResourcesConfig `yaml:"resources"`
	Matcher   MatcherConfig   `yaml:"matcher"`
}

// SiteConfig contains site-specific information.
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
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

// JWTConfig contains bearer token settings for the HTTP API.
// When Enabled is false the API is open to the local network.
type JWTConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
	Issuer  string `yaml:"issuer"`
}

// Registry source kinds.
const (
	SourceHomeAssistant = "homeassistant"
	SourceFile          = "file"
)

// RegistryConfig selects and configures the upstream entity registry.
type RegistryConfig struct {
	// Source is "homeassistant" or "file".
	Source        string              `yaml:"source"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	File          FileSourceConfig    `yaml:"file"`
	Breaker       BreakerConfig       `yaml:"breaker"`
}

// HomeAssistantConfig contains the Home Assistant WebSocket connection details.
type HomeAssistantConfig struct {
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// FileSourceConfig points at a YAML registry fixture.
type FileSourceConfig struct {
	Path string `yaml:"path"`
}

// BreakerConfig controls the circuit breaker around registry calls.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// CacheConfig controls snapshot refresh cadence and staleness.
type CacheConfig struct {
	// Interval is the background refresh period on normal hosts.
	Interval time.Duration `yaml:"interval"`

	// ConstrainedInterval is the background refresh period on constrained hosts.
	ConstrainedInterval time.Duration `yaml:"constrained_interval"`

	// Timeout bounds a single refresh cycle.
	Timeout time.Duration `yaml:"timeout"`

	// MaxAge is the staleness bound. Zero means twice the active interval.
	MaxAge time.Duration `yaml:"max_age"`

	// FailureThreshold is the number of consecutive failed refreshes after
	// which the provider is reported unavailable.
	FailureThreshold int `yaml:"failure_threshold"`

	// Persist stores each published snapshot in SQLite for warm starts.
	Persist bool `yaml:"persist"`
}

// ResourcesConfig controls tier admission.
type ResourcesConfig struct {
	// Constrained forces the host classification. Nil means detect.
	Constrained *bool `yaml:"constrained"`

	Profiles ProfilesConfig `yaml:"profiles"`

	Worker WorkerConfig `yaml:"worker"`

	// FetchAttempts bounds Tier-A fetch retries.
	FetchAttempts int `yaml:"fetch_attempts"`

	// RetryAfter is advertised to callers when resources are exhausted.
	RetryAfter time.Duration `yaml:"retry_after"`

	// LegacyDomains restricts the Tier-B fallback to these domains.
	LegacyDomains []string `yaml:"legacy_domains"`
}

// ProfilesConfig holds the memory thresholds for each host class.
type ProfilesConfig struct {
	Normal      ThresholdConfig `yaml:"normal"`
	Constrained ThresholdConfig `yaml:"constrained"`
}

// ThresholdConfig holds a memory profile in megabytes.
type ThresholdConfig struct {
	CeilingMB          int `yaml:"ceiling_mb"`
	FullHeadroomMB     int `yaml:"full_headroom_mb"`
	DegradedHeadroomMB int `yaml:"degraded_headroom_mb"`
}

// WorkerConfig controls the isolated Tier-A build worker.
type WorkerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Binary defaults to the running executable.
	Binary string `yaml:"binary"`

	Timeout time.Duration `yaml:"timeout"`
}

// MatcherConfig configures intent matching.
type MatcherConfig struct {
	// VocabularyFile optionally replaces the built-in vocabulary.
	VocabularyFile string `yaml:"vocabulary_file"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_HA_TOKEN
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

// Default returns the built-in configuration with environment overrides applied.
// Used when no config file is given.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-hub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-hub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{Issuer: "graylogic"},
		},
		Registry: RegistryConfig{
			Source: SourceHomeAssistant,
			HomeAssistant: HomeAssistantConfig{
				URL:            "ws://localhost:8123/api/websocket",
				DialTimeout:    10 * time.Second,
				RequestTimeout: 20 * time.Second,
			},
			Breaker: BreakerConfig{
				MaxFailures: 3,
				OpenTimeout: 30 * time.Second,
			},
		},
		Cache: CacheConfig{
			Interval:            30 * time.Second,
			ConstrainedInterval: 120 * time.Second,
			Timeout:             30 * time.Second,
			FailureThreshold:    3,
			Persist:             true,
		},
		Resources: ResourcesConfig{
			Profiles: ProfilesConfig{
				Normal: ThresholdConfig{
					CeilingMB:          1024,
					FullHeadroomMB:     256,
					DegradedHeadroomMB: 64,
				},
				Constrained: ThresholdConfig{
					CeilingMB:          384,
					FullHeadroomMB:     512,
					DegradedHeadroomMB: 128,
				},
			},
			Worker: WorkerConfig{
				Timeout: 20 * time.Second,
			},
			FetchAttempts: 3,
			RetryAfter:    60 * time.Second,
			LegacyDomains: []string{
				"light", "switch", "climate", "fan", "cover", "lock",
				"media_player", "sensor", "binary_sensor", "vacuum",
				"camera", "humidifier", "water_heater", "scene", "script",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Registry
	if v := os.Getenv("GRAYLOGIC_HA_URL"); v != "" {
		cfg.Registry.HomeAssistant.URL = v
	}
	if v := os.Getenv("GRAYLOGIC_HA_TOKEN"); v != "" {
		cfg.Registry.HomeAssistant.Token = v
	}

	// Resources: accepts any strconv.ParseBool spelling; junk leaves detection on.
	if v := os.Getenv("GRAYLOGIC_CONSTRAINED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Resources.Constrained = &b
		}
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Cache.Persist && c.Database.Path == "" {
		errs = append(errs, "database.path is required when cache.persist is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Enabled && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters when jwt is enabled")
	}

	switch c.Registry.Source {
	case SourceHomeAssistant:
		if c.Registry.HomeAssistant.URL == "" {
			errs = append(errs, "registry.homeassistant.url is required")
		}
		if c.Registry.HomeAssistant.Token == "" {
			errs = append(errs, "registry.homeassistant.token is required (set GRAYLOGIC_HA_TOKEN environment variable)")
		}
	case SourceFile:
		if c.Registry.File.Path == "" {
			errs = append(errs, "registry.file.path is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("registry.source must be %q or %q", SourceHomeAssistant, SourceFile))
	}

	if c.Registry.Breaker.MaxFailures < 1 {
		errs = append(errs, "registry.breaker.max_failures must be at least 1")
	}

	if c.Cache.Interval <= 0 || c.Cache.ConstrainedInterval <= 0 {
		errs = append(errs, "cache intervals must be positive")
	}
	if c.Cache.Timeout <= 0 {
		errs = append(errs, "cache.timeout must be positive")
	}
	if c.Cache.MaxAge < 0 {
		errs = append(errs, "cache.max_age must not be negative")
	}
	if c.Cache.FailureThreshold < 1 {
		errs = append(errs, "cache.failure_threshold must be at least 1")
	}

	for _, p := range []struct {
		name string
		t    ThresholdConfig
	}{
		{"normal", c.Resources.Profiles.Normal},
		{"constrained", c.Resources.Profiles.Constrained},
	} {
		if p.t.CeilingMB <= 0 || p.t.FullHeadroomMB <= 0 || p.t.DegradedHeadroomMB <= 0 {
			errs = append(errs, fmt.Sprintf("resources.profiles.%s thresholds must be positive", p.name))
		} else if p.t.DegradedHeadroomMB > p.t.FullHeadroomMB {
			errs = append(errs, fmt.Sprintf("resources.profiles.%s.degraded_headroom_mb must not exceed full_headroom_mb", p.name))
		}
	}

	if c.Resources.Worker.Enabled && c.Resources.Worker.Timeout <= 0 {
		errs = append(errs, "resources.worker.timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// RefreshInterval returns the background refresh period for the host class.
func (c *Config) RefreshInterval(constrained bool) time.Duration {
	if constrained {
		return c.Cache.ConstrainedInterval
	}
	return c.Cache.Interval
}

// MaxAge returns the staleness bound for the host class.
func (c *Config) MaxAge(constrained bool) time.Duration {
	if c.Cache.MaxAge > 0 {
		return c.Cache.MaxAge
	}
	return 2 * c.RefreshInterval(constrained)
}
