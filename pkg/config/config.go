// Package config loads server configuration from a TOML file, a .env file
// and the process environment. Environment variables win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ServerConfig names the framework-level settings.
type ServerConfig struct {
	Name         string `toml:"name"`
	Version      string `toml:"version"`
	Instructions string `toml:"instructions"`
}

// HTTPConfig configures the SSE transport listener.
type HTTPConfig struct {
	Addr           string   `toml:"addr"`
	PathPrefix     string   `toml:"path_prefix"`
	AllowedOrigins []string `toml:"allowed_origins"`
	KeepAlive      duration `toml:"keep_alive"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
}

// AuthConfig configures the bearer gate. Auth is off when Issuer is empty.
type AuthConfig struct {
	Issuer   string   `toml:"issuer"`
	Audience string   `toml:"audience"`
	JWKSURL  string   `toml:"jwks_url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Enabled    bool    `toml:"enabled"`
	Exporter   string  `toml:"exporter"`
	Endpoint   string  `toml:"endpoint"`
	Insecure   bool    `toml:"insecure"`
	SampleRate float64 `toml:"sample_rate"`
}

// OpenAPIConfig configures the generated API document endpoint.
type OpenAPIConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	HTTP    HTTPConfig    `toml:"http"`
	Auth    AuthConfig    `toml:"auth"`
	Metrics MetricsConfig `toml:"metrics"`
	Tracing TracingConfig `toml:"tracing"`
	OpenAPI OpenAPIConfig `toml:"openapi"`
}

// duration lets TOML carry values like "30s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// Duration converts back to the standard type.
func (d duration) Duration() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "conduit",
			Version: "0.1.0",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			KeepAlive:    duration(30 * time.Second),
			MaxBodyBytes: 4 << 20,
		},
		Auth: AuthConfig{
			CacheTTL: duration(5 * time.Minute),
		},
		Metrics: MetricsConfig{Path: "/metrics"},
		Tracing: TracingConfig{
			Exporter:   "otlp-grpc",
			SampleRate: 1.0,
		},
		OpenAPI: OpenAPIConfig{Path: "/openapi.json"},
	}
}

// Load reads the TOML file at path (skipped when path is empty or the file
// does not exist), loads a .env file when one exists, and finally applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %q: %w", path, err)
			}
		case os.IsNotExist(err):
			// Fall through to defaults plus environment.
		default:
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values from CONDUIT_* environment variables.
func (c *Config) applyEnv() error {
	setString(&c.Server.Name, "CONDUIT_SERVER_NAME")
	setString(&c.Server.Version, "CONDUIT_SERVER_VERSION")
	setString(&c.Server.Instructions, "CONDUIT_SERVER_INSTRUCTIONS")

	setString(&c.HTTP.Addr, "CONDUIT_HTTP_ADDR")
	setString(&c.HTTP.PathPrefix, "CONDUIT_HTTP_PATH_PREFIX")
	if v, ok := os.LookupEnv("CONDUIT_HTTP_ALLOWED_ORIGINS"); ok {
		c.HTTP.AllowedOrigins = splitList(v)
	}
	if err := setDuration(&c.HTTP.KeepAlive, "CONDUIT_HTTP_KEEP_ALIVE"); err != nil {
		return err
	}
	if err := setInt64(&c.HTTP.MaxBodyBytes, "CONDUIT_HTTP_MAX_BODY_BYTES"); err != nil {
		return err
	}

	setString(&c.Auth.Issuer, "CONDUIT_AUTH_ISSUER")
	setString(&c.Auth.Audience, "CONDUIT_AUTH_AUDIENCE")
	setString(&c.Auth.JWKSURL, "CONDUIT_AUTH_JWKS_URL")
	if err := setDuration(&c.Auth.CacheTTL, "CONDUIT_AUTH_CACHE_TTL"); err != nil {
		return err
	}

	if err := setBool(&c.Metrics.Enabled, "CONDUIT_METRICS_ENABLED"); err != nil {
		return err
	}
	setString(&c.Metrics.Path, "CONDUIT_METRICS_PATH")

	if err := setBool(&c.Tracing.Enabled, "CONDUIT_TRACING_ENABLED"); err != nil {
		return err
	}
	setString(&c.Tracing.Exporter, "CONDUIT_TRACING_EXPORTER")
	setString(&c.Tracing.Endpoint, "CONDUIT_TRACING_ENDPOINT")
	if err := setBool(&c.Tracing.Insecure, "CONDUIT_TRACING_INSECURE"); err != nil {
		return err
	}
	if err := setFloat(&c.Tracing.SampleRate, "CONDUIT_TRACING_SAMPLE_RATE"); err != nil {
		return err
	}

	if err := setBool(&c.OpenAPI.Enabled, "CONDUIT_OPENAPI_ENABLED"); err != nil {
		return err
	}
	setString(&c.OpenAPI.Path, "CONDUIT_OPENAPI_PATH")

	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}
	if c.HTTP.PathPrefix != "" && !strings.HasPrefix(c.HTTP.PathPrefix, "/") {
		return fmt.Errorf("http.path_prefix must start with /, got %q", c.HTTP.PathPrefix)
	}
	if c.Auth.Issuer != "" && c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth.jwks_url is required when auth.issuer is set")
	}
	switch c.Tracing.Exporter {
	case "", "otlp-grpc", "otlp-http", "noop":
	default:
		return fmt.Errorf("tracing.exporter must be otlp-grpc, otlp-http or noop, got %q", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0,1], got %v", c.Tracing.SampleRate)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setInt64(dst *int64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setFloat(dst *float64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setDuration(dst *duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = duration(parsed)
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
