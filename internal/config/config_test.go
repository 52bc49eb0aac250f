package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"workspace": "/tmp/sanduku",
		"server": {"listen_addr": ":9090", "api_key": "secret"},
		"engine": {"default_timeout_seconds": 30, "grace_period_seconds": 10}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Workspace != "/tmp/sanduku" {
		t.Errorf("Workspace = %q, want %q", cfg.Workspace, "/tmp/sanduku")
	}
	if cfg.Server.Addr() != ":9090" {
		t.Errorf("Addr() = %q, want %q", cfg.Server.Addr(), ":9090")
	}
	if cfg.Server.APIKey != "secret" {
		t.Errorf("APIKey = %q, want %q", cfg.Server.APIKey, "secret")
	}
	if got := cfg.Engine.DefaultTimeout(); got != 30*time.Second {
		t.Errorf("DefaultTimeout() = %s, want 30s", got)
	}
	if got := cfg.Engine.GracePeriod(); got != 10*time.Second {
		t.Errorf("GracePeriod() = %s, want 10s", got)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
workspace: /data/work
server:
  listen_addr: ":7070"
janitor:
  enabled: true
  schedule: "*/15 * * * *"
  max_age_seconds: 3600
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Workspace != "/data/work" {
		t.Errorf("Workspace = %q, want %q", cfg.Workspace, "/data/work")
	}
	if cfg.Janitor == nil || !cfg.Janitor.Enabled {
		t.Fatal("Janitor not enabled")
	}
	if got := cfg.Janitor.SweepSchedule(); got != "*/15 * * * *" {
		t.Errorf("SweepSchedule() = %q, want %q", got, "*/15 * * * *")
	}
	if got := cfg.Janitor.MaxAge(); got != time.Hour {
		t.Errorf("MaxAge() = %s, want 1h", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SANDUKU_WORKSPACE", "/env/work")
	t.Setenv("SANDUKU_LISTEN_ADDR", ":6060")
	t.Setenv("SANDUKU_API_KEY", "env-key")

	path := writeConfig(t, "config.json", `{
		"workspace": "/file/work",
		"server": {"listen_addr": ":9090", "api_key": "file-key"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Workspace != "/env/work" {
		t.Errorf("Workspace = %q, want env override", cfg.Workspace)
	}
	if cfg.Server.ListenAddr != ":6060" {
		t.Errorf("ListenAddr = %q, want env override", cfg.Server.ListenAddr)
	}
	if cfg.Server.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env override", cfg.Server.APIKey)
	}
}

func TestLoad_RateLimit(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"server": {"rate_limit": {"requests_per_minute": 30, "max_concurrent": 4}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.RateLimit.RequestsPerMinute != 30 {
		t.Errorf("RequestsPerMinute = %d, want 30", cfg.Server.RateLimit.RequestsPerMinute)
	}
	if cfg.Server.RateLimit.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want 4", cfg.Server.RateLimit.MaxConcurrent)
	}
}

func TestLoad_NegativeMaxConcurrent(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"server": {"rate_limit": {"max_concurrent": -1}}
	}`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted negative max_concurrent")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("Load returned nil error for missing file")
	}
}

func TestLoad_InvalidTracing(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"observability": {"tracing": {"enabled": true, "protocol": "grpc"}}
	}`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted tracing config without endpoint")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Workspace != "/app" {
		t.Errorf("Workspace = %q, want %q", cfg.Workspace, "/app")
	}
	if cfg.Server.Addr() != ":8080" {
		t.Errorf("Addr() = %q, want %q", cfg.Server.Addr(), ":8080")
	}
	if cfg.Observability == nil || cfg.Observability.Metrics == nil || !cfg.Observability.Metrics.Enabled {
		t.Error("default config should enable metrics")
	}
}

func TestNilSectionAccessors(t *testing.T) {
	var (
		srv *ServerConfig
		eng *EngineConfig
		jan *JanitorConfig
		met *MetricsConfig
	)

	if srv.Addr() != ":8080" {
		t.Errorf("nil ServerConfig Addr() = %q", srv.Addr())
	}
	if srv.MaxRequestSize() != 32<<20 {
		t.Errorf("nil ServerConfig MaxRequestSize() = %d", srv.MaxRequestSize())
	}
	if eng.DefaultTimeout() != 0 {
		t.Errorf("nil EngineConfig DefaultTimeout() = %s", eng.DefaultTimeout())
	}
	if eng.GracePeriod() != 5*time.Second {
		t.Errorf("nil EngineConfig GracePeriod() = %s", eng.GracePeriod())
	}
	if jan.MaxAge() != 24*time.Hour {
		t.Errorf("nil JanitorConfig MaxAge() = %s", jan.MaxAge())
	}
	if met.MetricsPath() != "/metrics" {
		t.Errorf("nil MetricsConfig MetricsPath() = %q", met.MetricsPath())
	}
}
