package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// HealthChecker aggregates readiness from the sandbox's dependencies.
// A Sanduku instance is ready when its workspace is reachable and the
// configured shell can be launched; deployments may register further checks.
type HealthChecker struct {
	checks []HealthCheck
	logger *slog.Logger
}

// HealthCheck is a named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthStatus is the JSON response for health/readiness endpoints.
type HealthStatus struct {
	Status string                 `json:"status"` // "ok" or "degraded"
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the status of a single dependency check.
type CheckResult struct {
	Status    string `json:"status"`            // "ok" or "fail"
	Message   string `json:"message,omitempty"` // Error message on failure.
	LatencyMS int64  `json:"latency_ms"`
}

// NewHealthChecker creates a HealthChecker with no checks registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{logger: logger}
}

// AddCheck registers a named health check.
func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error) {
	h.checks = append(h.checks, HealthCheck{Name: name, Check: check})
}

// WorkspaceCheck verifies the workspace root exists and is a directory.
// A missing or replaced workspace means uploads and executions would fail,
// so the instance must report not-ready.
func WorkspaceCheck(root string) func(ctx context.Context) error {
	return func(_ context.Context) error {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("workspace %s: %w", root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("workspace %s is not a directory", root)
		}
		return nil
	}
}

// ShellCheck verifies the execution shell resolves to a runnable binary.
func ShellCheck(shell string) func(ctx context.Context) error {
	return func(_ context.Context) error {
		if _, err := exec.LookPath(shell); err != nil {
			return fmt.Errorf("shell %s: %w", shell, err)
		}
		return nil
	}
}

// CheckHealth returns liveness status. Always returns "ok" if the process is running.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: "ok"}
}

// CheckReady runs all registered checks and returns aggregate readiness.
// Returns "ok" only if all checks pass; "degraded" if any fail.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	if len(h.checks) == 0 {
		return HealthStatus{Status: "ok"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]CheckResult, len(h.checks)),
	}

	for _, c := range h.checks {
		start := time.Now()
		err := c.Check(checkCtx)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			status.Status = "degraded"
			status.Checks[c.Name] = CheckResult{
				Status:    "fail",
				Message:   err.Error(),
				LatencyMS: elapsed,
			}
			if h.logger != nil {
				h.logger.Warn("readiness check failed",
					slog.String("check", c.Name),
					slog.String("error", err.Error()),
				)
			}
		} else {
			status.Checks[c.Name] = CheckResult{Status: "ok", LatencyMS: elapsed}
		}
	}

	return status
}
