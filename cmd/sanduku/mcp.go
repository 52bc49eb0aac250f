package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/sanduku/internal/mcpserver"
	"github.com/jkaninda/sanduku/internal/workspace"
)

var mcpQuiet bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the execute tool over MCP on stdio",
	RunE:  runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&serverConfigPath, "config", "", "path to config file (JSON or YAML)")
	mcpCmd.Flags().BoolVar(&mcpQuiet, "quiet", false, "suppress log output")
}

// runMCP starts Sanduku as an MCP stdio server. Stdout carries the protocol,
// so logs go to stderr (or nowhere with --quiet).
func runMCP(_ *cobra.Command, _ []string) error {
	logOut := io.Writer(os.Stderr)
	if mcpQuiet {
		logOut = io.Discard
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	wsp, err := workspace.New(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}

	executor := buildExecutor(cfg, wsp, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting in mcp mode", slog.String("workspace", wsp.Root))
	if err := mcpserver.Run(ctx, executor, version); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
