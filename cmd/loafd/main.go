// Command loafd runs the loaf cognition substrate as a long-lived daemon:
// heartbeat sweeps, periodic snapshots, and — when LOAF_MCP_STDIO=true —
// the MCP tool surface over stdio for a chat host.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/loaf-ai/loaf"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("LOAF_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	sub, err := loaf.New(
		loaf.WithVersion(version),
		loaf.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	// Restore the previous snapshot if one exists; a fresh host starts
	// empty.
	if err := sub.LoadSnapshot(ctx); err != nil {
		logger.Info("no snapshot restored", "reason", err)
	} else {
		logger.Info("snapshot restored", "dtus", sub.Stats().DTUs)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sub.Run(ctx) })

	if os.Getenv("LOAF_MCP_STDIO") == "true" {
		g.Go(func() error {
			logger.Info("mcp: serving over stdio")
			return mcpserver.ServeStdio(sub.MCPServer())
		})
	}

	return g.Wait()
}
