package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"fsbridge/internal/adapter/mcpserver"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp",
		Usage:  "serve the file commands as MCP tools over stdio",
		Action: runMCP,
	}
}

func runMCP(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol.
	rt, err := newRuntime(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rt.Close(shutdownCtx)
	}()

	if err := rt.scheduleRetention(ctx); err != nil {
		return err
	}
	rt.logger.Info("mcp server starting", "name", cfg.MCP.Name, "version", cfg.MCP.Version)
	err = mcpserver.New(rt.registry, cfg.MCP, rt.logger).ServeStdio(ctx, c.App.Reader, c.App.Writer)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
