package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/sanduku/internal/config"
	"github.com/jkaninda/sanduku/internal/engine"
	"github.com/jkaninda/sanduku/internal/gateway/httpapi"
	"github.com/jkaninda/sanduku/internal/gateway/ws"
	"github.com/jkaninda/sanduku/internal/janitor"
	"github.com/jkaninda/sanduku/internal/observability"
	"github.com/jkaninda/sanduku/internal/ratelimit"
	"github.com/jkaninda/sanduku/internal/workspace"
)

var (
	serverConfigPath string
	serverAddr       string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the sandbox HTTP server (execute, upload, download, WebSocket)",
	RunE:  runServer,
}

func init() {
	// Register flags on both root and server so that
	// `sanduku --config path` and `sanduku server --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serverCmd} {
		cmd.Flags().StringVar(&serverConfigPath, "config", "", "path to config file (JSON or YAML)")
		cmd.Flags().StringVar(&serverAddr, "addr", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServer starts Sanduku in server mode.
func runServer(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if serverAddr != "" {
		cfg.Server.ListenAddr = serverAddr
	}

	// Workspace.
	wsp, err := workspace.New(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}
	logger.Info("workspace initialized", slog.String("root", wsp.Root))

	shell := cfg.Engine.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	// Observability. Workspace and shell readiness checks come pre-registered.
	obs, err := observability.New(cfg.Observability, observability.RuntimeInfo{
		Version:   version,
		Shell:     shell,
		Workspace: wsp.Root,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()

	executor := buildExecutor(cfg, wsp, obs, logger)

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Workspace janitor (optional).
	if cfg.Janitor != nil && cfg.Janitor.Enabled {
		jan, err := janitor.New(cfg.Janitor, wsp, obs.MetricsOrNil(), logger)
		if err != nil {
			return fmt.Errorf("initializing janitor: %w", err)
		}
		cancelJanitor := jan.Start(ctx)
		defer cancelJanitor()
		logger.Info("janitor started",
			slog.String("schedule", cfg.Janitor.SweepSchedule()),
			slog.String("max_age", cfg.Janitor.MaxAge().String()),
		)
	}

	// Execution limiter (optional).
	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit.RequestsPerMinute > 0 || cfg.Server.RateLimit.MaxConcurrent > 0 {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			ExecutionsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
			BurstSize:           cfg.Server.RateLimit.BurstSize,
			MaxConcurrent:       cfg.Server.RateLimit.MaxConcurrent,
		})
	}

	// WebSocket execution endpoint, mounted on the HTTP gateway.
	wsServer := ws.NewServer(executor, ws.Config{
		APIKey:         cfg.Server.APIKey,
		DefaultTimeout: cfg.Engine.DefaultTimeout(),
	}, logger)

	httpCfg := httpapi.Config{
		ListenAddr:     cfg.Server.Addr(),
		EnableDocs:     cfg.Server.EnableDocs,
		APIKey:         cfg.Server.APIKey,
		MaxRequestSize: cfg.Server.MaxRequestSize(),
		DefaultTimeout: cfg.Engine.DefaultTimeout(),
	}
	if obs != nil {
		httpCfg.Metrics = obs.Metrics
		httpCfg.HealthChecker = obs.Health
		if obs.Metrics != nil {
			httpCfg.MetricsRegistry = obs.Metrics.Registry
		}
		if obs.Tracer != nil {
			httpCfg.Tracer = obs.Tracer.Tracer()
		}
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			httpCfg.MetricsPath = cfg.Observability.Metrics.MetricsPath()
		}
	}

	gw := httpapi.NewGateway(httpCfg, executor, wsp, limiter, logger).
		WithHandler("/execute/ws", wsServer.Handler())

	logger.Info("starting in server mode",
		slog.String("addr", cfg.Server.Addr()),
		slog.Bool("auth", cfg.Server.APIKey != ""),
	)

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("server exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return gw.Stop(shutdownCtx)
}

// loadConfig resolves the config path from flag or env and loads it,
// falling back to defaults when no path is given.
func loadConfig() (*config.Config, error) {
	path := goutils.Env("SANDUKU_CONFIG", serverConfigPath)
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildExecutor creates the execution engine, instrumented when metrics or
// tracing are enabled.
func buildExecutor(cfg *config.Config, wsp *workspace.Workspace, obs *observability.Observability, logger *slog.Logger) engine.Executor {
	var executor engine.Executor = engine.New(engine.Config{
		Shell:          cfg.Engine.Shell,
		WorkDir:        wsp.Root,
		GracePeriod:    cfg.Engine.GracePeriod(),
		MaxOutputBytes: cfg.Engine.MaxOutputBytes,
	}, logger)

	if obs != nil && obs.Metrics != nil {
		executor = observability.NewInstrumentedExecutor(executor, obs.Metrics, obs.TracerOrNil())
	}
	return executor
}
