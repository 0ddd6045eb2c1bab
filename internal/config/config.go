package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Auth modes.
const (
	AuthDevelopment = "development"
	AuthExternal    = "external"
)

// Config is the server configuration.
type Config struct {
	Port           string  `mapstructure:"PORT"`
	Env            string  `mapstructure:"ENV"`
	AuthMode       string  `mapstructure:"AUTH_MODE"`
	DatabaseURL    string  `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32   `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32   `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer     string  `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string  `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string  `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string  `mapstructure:"AUTH_SIGNING_KEY"`
	DefaultTenant  string  `mapstructure:"DEFAULT_TENANT"`
	KafkaTopic     string  `mapstructure:"KAFKA_TOPIC"`
	IdempotencyTTL int     `mapstructure:"IDEMPOTENCY_TTL_SECONDS"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
	TLSEnabled     bool    `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string  `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string  `mapstructure:"TLS_KEY_FILE"`

	// Comma-separated in the environment.
	CORSOrigins     []string `mapstructure:"-"`
	EntitledTenants []string `mapstructure:"-"`
	KafkaBrokers    []string `mapstructure:"-"`
}

var serverKeys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"DEFAULT_TENANT", "CORS_ORIGINS", "ENTITLED_TENANTS", "KAFKA_BROKERS",
	"KAFKA_TOPIC", "IDEMPOTENCY_TTL_SECONDS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads the server configuration from .env and the environment.
// DATABASE_URL is required.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("KAFKA_TOPIC", "opd.visit-flow.stage-changed")
	v.SetDefault("IDEMPOTENCY_TTL_SECONDS", 86400)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	for _, k := range serverKeys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.EntitledTenants = splitList(v.GetString("ENTITLED_TENANTS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise development for
// ENV=development and external for everything else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthDevelopment
	}
	return AuthExternal
}

// IdempotencyWindow is IDEMPOTENCY_TTL_SECONDS as a duration.
func (c *Config) IdempotencyWindow() time.Duration {
	return time.Duration(c.IdempotencyTTL) * time.Second
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed with ENV=production")
		}
	case AuthExternal:
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when AUTH_MODE is %q (current ENV=%q)", AuthExternal, c.Env)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthDevelopment, AuthExternal, mode)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}

// ClientConfig configures the CLI that hosts the flow engine.
type ClientConfig struct {
	APIURL     string `mapstructure:"OPDFLOW_API_URL" yaml:"OPDFLOW_API_URL"`
	Token      string `mapstructure:"OPDFLOW_TOKEN" yaml:"OPDFLOW_TOKEN"`
	TenantID   string `mapstructure:"OPDFLOW_TENANT" yaml:"OPDFLOW_TENANT"`
	FacilityID string `mapstructure:"OPDFLOW_FACILITY" yaml:"OPDFLOW_FACILITY"`
	ListRoot   string `mapstructure:"OPDFLOW_LIST_ROOT" yaml:"OPDFLOW_LIST_ROOT"`
	Timeout    int    `mapstructure:"OPDFLOW_TIMEOUT_SECONDS" yaml:"OPDFLOW_TIMEOUT_SECONDS"`
}

// LoadClient reads the client configuration from an optional YAML file and
// the environment. The environment wins. Nothing is required.
func LoadClient(file string) (*ClientConfig, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("OPDFLOW_API_URL", "http://localhost:8000")
	v.SetDefault("OPDFLOW_LIST_ROOT", "/opd/visits")
	v.SetDefault("OPDFLOW_TIMEOUT_SECONDS", 15)
	for _, k := range []string{"OPDFLOW_API_URL", "OPDFLOW_TOKEN", "OPDFLOW_TENANT", "OPDFLOW_FACILITY", "OPDFLOW_LIST_ROOT", "OPDFLOW_TIMEOUT_SECONDS"} {
		_ = v.BindEnv(k)
	}

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read client config %s: %w", file, err)
		}
	}

	cfg := &ClientConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal client config: %w", err)
	}
	if cfg.ListRoot == "" {
		cfg.ListRoot = "/opd/visits"
	}
	return cfg, nil
}

// RequestTimeout is OPDFLOW_TIMEOUT_SECONDS as a duration.
func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
