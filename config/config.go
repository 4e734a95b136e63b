// Package config loads tariffd configuration from an optional YAML file
// and TARIFF_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"github.com/jonwraymond/scenariocache/secret"
)

// EnvPrefix prefixes every environment override, e.g. TARIFF_STORE_BASE_URL.
const EnvPrefix = "TARIFF"

// Store backends.
const (
	BackendHTTP   = "http"
	BackendMemory = "memory"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config holds the full service configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Log     LogConfig     `mapstructure:"log"`
	Observe ObserveConfig `mapstructure:"observe"`
	Secrets SecretsConfig `mapstructure:"secrets"`
}

// StoreConfig configures the remote document store.
type StoreConfig struct {
	// Backend is "http" or "memory". The memory backend keeps documents in
	// process and is meant for local runs.
	Backend    string        `mapstructure:"backend"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// BreakerFailures opens the circuit after that many consecutive
	// failed attempts. Zero disables the breaker.
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerReset    time.Duration `mapstructure:"breaker_reset"`

	// RateLimit caps calls per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// EngineConfig configures the risk engine.
type EngineConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	Version     string        `mapstructure:"version"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig enables inbound authentication. With no keys and no JWT
// secret the API is open.
type AuthConfig struct {
	APIKeys     []string `mapstructure:"api_keys"`
	JWTSecret   string   `mapstructure:"jwt_secret"`
	JWTIssuer   string   `mapstructure:"jwt_issuer"`
	JWTAudience string   `mapstructure:"jwt_audience"`
}

// Enabled reports whether any credential is configured.
func (a AuthConfig) Enabled() bool {
	return len(a.APIKeys) > 0 || a.JWTSecret != ""
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObserveConfig configures tracing and metrics.
type ObserveConfig struct {
	ServiceName     string  `mapstructure:"service_name"`
	TracingEnabled  bool    `mapstructure:"tracing_enabled"`
	TracingExporter string  `mapstructure:"tracing_exporter"`
	SamplePct       float64 `mapstructure:"sample_pct"`
	MetricsEnabled  bool    `mapstructure:"metrics_enabled"`
	MetricsExporter string  `mapstructure:"metrics_exporter"`
}

// SecretsConfig configures secret resolution.
type SecretsConfig struct {
	// FileDir roots secretref:file: references.
	FileDir string `mapstructure:"file_dir"`
	// Strict rejects references that resolve to an empty value.
	Strict bool `mapstructure:"strict"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", BackendHTTP)
	v.SetDefault("store.base_url", "")
	v.SetDefault("store.api_key", "")
	v.SetDefault("store.timeout", 10*time.Second)
	v.SetDefault("store.max_retries", 2)
	v.SetDefault("store.retry_delay", 100*time.Millisecond)
	v.SetDefault("store.breaker_failures", 0)
	v.SetDefault("store.breaker_reset", 30*time.Second)
	v.SetDefault("store.rate_limit", 0)
	v.SetDefault("store.rate_burst", 10)

	v.SetDefault("engine.base_url", "")
	v.SetDefault("engine.token", "")
	v.SetDefault("engine.version", "1")
	v.SetDefault("engine.timeout", 30*time.Second)
	v.SetDefault("engine.max_attempts", 3)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.jwt_audience", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("observe.service_name", "tariffd")
	v.SetDefault("observe.tracing_enabled", false)
	v.SetDefault("observe.tracing_exporter", "none")
	v.SetDefault("observe.sample_pct", 1.0)
	v.SetDefault("observe.metrics_enabled", false)
	v.SetDefault("observe.metrics_exporter", "prometheus")

	v.SetDefault("secrets.file_dir", "/run/secrets")
	v.SetDefault("secrets.strict", true)
}

// Load reads configuration. An empty path looks for tariffd.yaml in the
// working directory and ignores its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tariffd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Store.Backend {
	case BackendHTTP:
		if c.Store.BaseURL == "" {
			add("store.base_url is required for the http backend")
		}
	case BackendMemory:
	default:
		add("store.backend must be %q or %q, got %q", BackendHTTP, BackendMemory, c.Store.Backend)
	}
	if c.Store.Timeout <= 0 {
		add("store.timeout must be positive")
	}
	if c.Store.MaxRetries < 0 {
		add("store.max_retries must not be negative")
	}
	if c.Store.RetryDelay < 0 {
		add("store.retry_delay must not be negative")
	}
	if c.Store.BreakerFailures < 0 {
		add("store.breaker_failures must not be negative")
	}
	if c.Store.RateLimit < 0 {
		add("store.rate_limit must not be negative")
	}

	if c.Engine.Version == "" {
		add("engine.version is required")
	}
	if c.Engine.Timeout < 0 {
		add("engine.timeout must not be negative")
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		add("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format %q is not json or console", c.Log.Format)
	}
	if c.Observe.SamplePct < 0 || c.Observe.SamplePct > 1 {
		add("observe.sample_pct must be within [0, 1]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Resolver builds the secret resolver described by Secrets.
func (c *Config) Resolver() *secret.Resolver {
	return secret.NewResolver(c.Secrets.Strict, c.Secrets.FileDir)
}

// ResolveSecrets replaces ${VAR} expansions and secretref: references in
// every credential field.
func (c *Config) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"store.api_key", &c.Store.APIKey},
		{"engine.token", &c.Engine.Token},
		{"auth.jwt_secret", &c.Auth.JWTSecret},
	}
	for _, f := range fields {
		v, err := r.Resolve(ctx, *f.ptr)
		if err != nil {
			return eris.Wrapf(err, "config: resolve %s", f.name)
		}
		*f.ptr = v
	}

	keys, err := r.ResolveAll(ctx, c.Auth.APIKeys)
	if err != nil {
		return eris.Wrap(err, "config: resolve auth.api_keys")
	}
	c.Auth.APIKeys = keys
	return nil
}
