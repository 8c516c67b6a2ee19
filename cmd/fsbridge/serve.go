package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"fsbridge/internal/adapter/gateway"
	"fsbridge/internal/infra/middleware"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the WebSocket gateway until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "override gateway.addr"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Gateway.Addr = addr
	}
	if !cfg.Gateway.Enabled {
		return cli.Exit("gateway is disabled (gateway.enabled: false)", 2)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, false)
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
	srv, err := newGateway(ctx, rt)
	if err != nil {
		return err
	}

	rt.logger.Info("fsbridge serving", "version", version, "addr", cfg.Gateway.Addr)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.logger.Info("fsbridge stopped")
	return nil
}

// newGateway builds the gateway with the HTTP middleware chain and every
// command exposed as an RPC method.
func newGateway(ctx context.Context, rt *runtime) (*gateway.Server, error) {
	gw := rt.cfg.Gateway
	auth, err := gateway.NewAuthenticator(gw.Auth)
	if err != nil {
		return nil, err
	}

	srv := gateway.NewServer(rt.bus, auth, gw.Addr, rt.logger,
		gateway.WithAllowedOrigins(gw.AllowedOrigins),
		gateway.WithMiddleware(
			middleware.RequestID,
			middleware.SecurityHeaders,
			middleware.RateLimit(ctx, middleware.RateLimitConfig{
				RequestsPerSecond: gw.RateLimit.RequestsPerSecond,
				Burst:             gw.RateLimit.Burst,
			}),
		),
	)

	deps := gateway.HandlerDeps{
		Commands: rt.registry,
		Bus:      rt.bus,
		BusStats: rt.bus.Stats,
		Logger:   rt.logger,
	}
	gateway.RegisterDefaultHandlers(srv, deps)
	gateway.RegisterRESTHandlers(srv, deps, gateway.BuildInfo{Name: "fsbridge", Version: version})
	return srv, nil
}
