// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// and health checks for Sanduku.
// All components are optional and nil-safe — when disabled, wrappers
// skip recording with a single nil check per operation.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jkaninda/sanduku/internal/config"
)

// RuntimeInfo describes the running sandbox instance. It feeds the trace
// resource attributes and selects the default readiness checks.
type RuntimeInfo struct {
	Version   string
	Shell     string // Execution shell, e.g. /bin/sh.
	Workspace string // Workspace root directory.
}

// Observability is the top-level facade holding all observability components.
// Any field may be nil when that feature is disabled.
type Observability struct {
	Metrics *MetricsCollector
	Tracer  *TracerSetup
	Health  *HealthChecker
}

// New creates an Observability instance from config.
// Returns nil when the config is nil (all features disabled).
// The health checker starts with readiness checks for the workspace and
// shell named in rt; callers may register more with Health.AddCheck.
func New(cfg *config.ObservabilityConfig, rt RuntimeInfo, logger *slog.Logger) (*Observability, error) {
	if cfg == nil {
		return nil, nil
	}

	obs := &Observability{}

	// Metrics.
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		obs.Metrics = NewMetricsCollector()
	}

	// Tracing.
	if cfg.Tracing != nil && cfg.Tracing.Enabled {
		ts, err := NewTracerSetup(cfg.Tracing, rt)
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		obs.Tracer = ts
	}

	// Health checker with the sandbox's own dependencies pre-registered.
	obs.Health = NewHealthChecker(logger)
	if rt.Workspace != "" {
		obs.Health.AddCheck("workspace", WorkspaceCheck(rt.Workspace))
	}
	if rt.Shell != "" {
		obs.Health.AddCheck("shell", ShellCheck(rt.Shell))
	}

	return obs, nil
}

// Shutdown releases observability resources.
func (o *Observability) Shutdown(ctx context.Context) {
	if o == nil {
		return
	}
	if o.Tracer != nil {
		_ = o.Tracer.Shutdown(ctx)
	}
}

// TracerOrNil returns the OTel tracer setup or nil if tracing is disabled.
func (o *Observability) TracerOrNil() *TracerSetup {
	if o == nil {
		return nil
	}
	return o.Tracer
}

// MetricsOrNil returns the metrics collector or nil if metrics are disabled.
func (o *Observability) MetricsOrNil() *MetricsCollector {
	if o == nil {
		return nil
	}
	return o.Metrics
}
