// Package config handles loading and validating Sanduku configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Sanduku.
type Config struct {
	Workspace     string               `json:"workspace,omitempty" yaml:"workspace,omitempty"` // Execution working directory. Default: /app. Override: SANDUKU_WORKSPACE env var.
	Server        ServerConfig         `json:"server" yaml:"server"`
	Engine        EngineConfig         `json:"engine" yaml:"engine"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Janitor       *JanitorConfig       `json:"janitor,omitempty" yaml:"janitor,omitempty"`             // nil = workspace sweeping disabled
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	ListenAddr          string          `json:"listen_addr" yaml:"listen_addr"`                       // Default: ":8080".
	APIKey              string          `json:"api_key,omitempty" yaml:"api_key,omitempty"`           // Bearer token. Empty = no auth. Override: SANDUKU_API_KEY env var.
	EnableDocs          bool            `json:"enable_docs" yaml:"enable_docs"`                       // Serve OpenAPI docs.
	MaxRequestSizeBytes int64           `json:"max_request_size_bytes" yaml:"max_request_size_bytes"` // Multipart upload cap. Default: 32 MB.
	RateLimit           RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
}

// Addr returns the listen address with a default of ":8080".
func (s *ServerConfig) Addr() string {
	if s != nil && s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// MaxRequestSize returns the multipart memory cap with a default of 32 MB.
func (s *ServerConfig) MaxRequestSize() int64 {
	if s != nil && s.MaxRequestSizeBytes > 0 {
		return s.MaxRequestSizeBytes
	}
	return 32 << 20
}

// RateLimitConfig configures per-client execution limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited.
	BurstSize         int `json:"burst_size" yaml:"burst_size"`                   // Default: requests_per_minute.
	MaxConcurrent     int `json:"max_concurrent" yaml:"max_concurrent"`           // In-flight executions per client. 0 = unlimited.
}

// EngineConfig configures command execution.
type EngineConfig struct {
	Shell                 string `json:"shell" yaml:"shell"`                                     // Default: "/bin/sh".
	DefaultTimeoutSeconds int    `json:"default_timeout_seconds" yaml:"default_timeout_seconds"` // Applied when a request omits a timeout. 0 = unbounded.
	GracePeriodSeconds    int    `json:"grace_period_seconds" yaml:"grace_period_seconds"`       // SIGTERM to SIGKILL escalation. Default: 5.
	MaxOutputBytes        int    `json:"max_output_bytes" yaml:"max_output_bytes"`               // Per-stream batch buffer cap. Default: 1 MB.
}

// DefaultTimeout returns the default execution timeout. 0 = unbounded.
func (e *EngineConfig) DefaultTimeout() time.Duration {
	if e != nil && e.DefaultTimeoutSeconds > 0 {
		return time.Duration(e.DefaultTimeoutSeconds) * time.Second
	}
	return 0
}

// GracePeriod returns the termination grace period with a default of 5s.
func (e *EngineConfig) GracePeriod() time.Duration {
	if e != nil && e.GracePeriodSeconds > 0 {
		return time.Duration(e.GracePeriodSeconds) * time.Second
	}
	return 5 * time.Second
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// MetricsPath returns the metrics path with a default of "/metrics".
func (m *MetricsConfig) MetricsPath() string {
	if m != nil && m.Path != "" {
		return m.Path
	}
	return "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "sanduku"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// JanitorConfig configures the periodic workspace sweeper.
// When nil, uploaded and generated files accumulate until removed by hand.
type JanitorConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Schedule      string `json:"schedule" yaml:"schedule"`               // Cron expression. Default: "0 * * * *" (hourly).
	MaxAgeSeconds int    `json:"max_age_seconds" yaml:"max_age_seconds"` // Entries older than this are removed. Default: 86400 (24h).
}

// SweepSchedule returns the cron schedule with a default of hourly.
func (j *JanitorConfig) SweepSchedule() string {
	if j != nil && j.Schedule != "" {
		return j.Schedule
	}
	return "0 * * * *"
}

// MaxAge returns the retention age with a default of 24h.
func (j *JanitorConfig) MaxAge() time.Duration {
	if j != nil && j.MaxAgeSeconds > 0 {
		return time.Duration(j.MaxAgeSeconds) * time.Second
	}
	return 24 * time.Hour
}

// Default returns the configuration used when no config file is given:
// unauthenticated server on :8080, /app workspace, metrics enabled.
func Default() *Config {
	cfg := &Config{
		Workspace: "/app",
		Observability: &ObservabilityConfig{
			Metrics: &MetricsConfig{Enabled: true},
		},
	}
	applyEnvOverrides(cfg)
	return cfg
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. The API key, listen address, and workspace can be set in the
// config file or overridden by environment variables. Environment variables
// take precedence.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Env vars take
// precedence over config file values.
func applyEnvOverrides(cfg *Config) {
	if envWS := os.Getenv("SANDUKU_WORKSPACE"); envWS != "" {
		cfg.Workspace = envWS
	}
	if envAddr := os.Getenv("SANDUKU_LISTEN_ADDR"); envAddr != "" {
		cfg.Server.ListenAddr = envAddr
	}
	if envKey := os.Getenv("SANDUKU_API_KEY"); envKey != "" {
		cfg.Server.APIKey = envKey
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

func (c *Config) validate() error {
	if c.Workspace == "" {
		c.Workspace = "/app"
	}
	if c.Engine.DefaultTimeoutSeconds < 0 {
		return fmt.Errorf("engine.default_timeout_seconds must not be negative")
	}
	if c.Engine.GracePeriodSeconds < 0 {
		return fmt.Errorf("engine.grace_period_seconds must not be negative")
	}
	if c.Engine.MaxOutputBytes < 0 {
		return fmt.Errorf("engine.max_output_bytes must not be negative")
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("server.rate_limit.requests_per_minute must not be negative")
	}
	if c.Server.RateLimit.MaxConcurrent < 0 {
		return fmt.Errorf("server.rate_limit.max_concurrent must not be negative")
	}
	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		t := c.Observability.Tracing
		if t.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch t.Protocol {
		case "", "grpc", "http":
			// valid
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", t.Protocol)
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be between 0.0 and 1.0")
		}
	}
	if c.Janitor != nil && c.Janitor.Enabled {
		if c.Janitor.MaxAgeSeconds < 0 {
			return fmt.Errorf("janitor.max_age_seconds must not be negative")
		}
	}
	return nil
}
