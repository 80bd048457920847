package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the ERP auth service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServiceConfig identifies this deployment in logs and published events.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig selects the SQL driver and connection settings.
//
// Driver "sqlite3" uses Path; driver "pgx" uses DSN.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Path         string `yaml:"path"`
	DSN          string `yaml:"dsn"`
	WALMode      bool   `yaml:"wal_mode"`
	BusyTimeout  int    `yaml:"busy_timeout"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	QueryTimeout int    `yaml:"query_timeout"` // seconds, applied per store call
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is honoured.
	// Empty means the peer address is always the client address.
	TrustedProxies []string `yaml:"trusted_proxies"`
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

// WebSocketConfig contains settings for the security event stream.
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"` // stdout, stderr or file
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// SecurityConfig contains token, lockout, rate limit and policy settings.
type SecurityConfig struct {
	JWT       JWTConfig                      `yaml:"jwt"`
	Lockout   LockoutConfig                  `yaml:"lockout"`
	RateLimit RateLimitConfig                `yaml:"rate_limit"`
	Roles     map[string]map[string][]string `yaml:"roles"` // role -> module -> actions
	Seed      SeedConfig                     `yaml:"seed"`
}

// JWTConfig contains JWT token settings.
//
// Expire and RefreshExpire are duration strings ("15m", "7d").
type JWTConfig struct {
	Secret        string `yaml:"secret"`
	Expire        string `yaml:"expire"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	RefreshSecret string `yaml:"refresh_secret"`
	RefreshExpire string `yaml:"refresh_expire"`
}

// LockoutConfig controls the failed-login lockout window.
type LockoutConfig struct {
	Threshold int    `yaml:"threshold"`
	Duration  string `yaml:"duration"`
}

// RateLimitConfig contains per-client rate limiting for credential endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// SeedConfig controls first-boot account creation.
type SeedConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// JWT and lockout settings use their conventional names (JWT_SECRET, JWT_EXPIRE,
// LOCKOUT_THRESHOLD, ...). Everything else follows ERPAUTH_SECTION_KEY.
//
// When optional is true a missing file is not an error and the configuration is
// built from defaults and the environment alone.
func Load(path string, optional bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "erp-auth",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite3",
			Path:         "./data/erpauth.db",
			WALMode:      true,
			BusyTimeout:  5,
			MaxOpenConns: 10,
			QueryTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "erp-auth",
			},
			QoS:         1,
			TopicPrefix: "erp/auth",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
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
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/erpauth.log",
				MaxAgeDays: 14,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Expire:        "15m",
				Issuer:        "erp-auth",
				Audience:      "erp-clients",
				RefreshExpire: "7d",
			},
			Lockout: LockoutConfig{
				Threshold: 5,
				Duration:  "30m",
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
			Seed: SeedConfig{
				Enabled:  true,
				Username: "superadmin",
				Email:    "superadmin@localhost",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	// Database
	setString("ERPAUTH_DATABASE_DRIVER", &cfg.Database.Driver)
	setString("ERPAUTH_DATABASE_PATH", &cfg.Database.Path)
	setString("ERPAUTH_DATABASE_DSN", &cfg.Database.DSN)

	// MQTT
	setString("ERPAUTH_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setString("ERPAUTH_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("ERPAUTH_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// API
	setString("ERPAUTH_API_HOST", &cfg.API.Host)
	if v := os.Getenv("ERPAUTH_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing ERPAUTH_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("ERPAUTH_API_TRUSTED_PROXIES"); v != "" {
		cfg.API.TrustedProxies = strings.Split(v, ",")
	}

	// InfluxDB
	setString("ERPAUTH_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	setString("ERPAUTH_LOG_LEVEL", &cfg.Logging.Level)

	// Tokens
	setString("JWT_SECRET", &cfg.Security.JWT.Secret)
	setString("JWT_EXPIRE", &cfg.Security.JWT.Expire)
	setString("JWT_ISSUER", &cfg.Security.JWT.Issuer)
	setString("JWT_AUDIENCE", &cfg.Security.JWT.Audience)
	setString("JWT_REFRESH_SECRET", &cfg.Security.JWT.RefreshSecret)
	setString("JWT_REFRESH_EXPIRE", &cfg.Security.JWT.RefreshExpire)

	// Lockout
	if v := os.Getenv("LOCKOUT_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing LOCKOUT_THRESHOLD: %w", err)
		}
		cfg.Security.Lockout.Threshold = n
	}
	setString("LOCKOUT_DURATION", &cfg.Security.Lockout.Duration)

	return nil
}

// minSecretLength is the shortest HMAC secret accepted for either token kind.
const minSecretLength = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite3")
		}
	case "pgx":
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for pgx")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite3, pgx)", c.Database.Driver))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if _, err := ParseTrustedProxies(c.API.TrustedProxies); err != nil {
		errs = append(errs, err.Error())
	}

	jwtCfg := c.Security.JWT
	if jwtCfg.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set JWT_SECRET)")
	} else if len(jwtCfg.Secret) < minSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}
	if jwtCfg.RefreshSecret == "" {
		errs = append(errs, "security.jwt.refresh_secret is required (set JWT_REFRESH_SECRET)")
	} else if len(jwtCfg.RefreshSecret) < minSecretLength {
		errs = append(errs, "security.jwt.refresh_secret must be at least 32 characters")
	}
	if jwtCfg.Secret != "" && jwtCfg.Secret == jwtCfg.RefreshSecret {
		errs = append(errs, "security.jwt.refresh_secret must differ from security.jwt.secret")
	}
	if d, err := ParseDuration(jwtCfg.Expire); err != nil || d <= 0 {
		errs = append(errs, fmt.Sprintf("security.jwt.expire %q is not a positive duration", jwtCfg.Expire))
	}
	if d, err := ParseDuration(jwtCfg.RefreshExpire); err != nil || d <= 0 {
		errs = append(errs, fmt.Sprintf("security.jwt.refresh_expire %q is not a positive duration", jwtCfg.RefreshExpire))
	}

	if c.Security.Lockout.Threshold < 1 {
		errs = append(errs, "security.lockout.threshold must be at least 1")
	}
	if d, err := ParseDuration(c.Security.Lockout.Duration); err != nil || d <= 0 {
		errs = append(errs, fmt.Sprintf("security.lockout.duration %q is not a positive duration", c.Security.Lockout.Duration))
	}

	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AccessTTL returns the parsed access token lifetime.
// Only meaningful after Validate has succeeded.
func (c *Config) AccessTTL() time.Duration {
	d, _ := ParseDuration(c.Security.JWT.Expire) //nolint:errcheck // validated in Validate
	return d
}

// RefreshTTL returns the parsed refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	d, _ := ParseDuration(c.Security.JWT.RefreshExpire) //nolint:errcheck // validated in Validate
	return d
}

// LockoutDuration returns the parsed lockout window.
func (c *Config) LockoutDuration() time.Duration {
	d, _ := ParseDuration(c.Security.Lockout.Duration) //nolint:errcheck // validated in Validate
	return d
}

// ParseDuration extends time.ParseDuration with a whole-day suffix ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
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

// ParseTrustedProxies converts IPs and CIDRs into prefixes. A bare IP
// becomes a single-address prefix.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("api.trusted_proxies %q is not a valid CIDR", e)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("api.trusted_proxies %q is not a valid IP", e)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
