package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"fsbridge/internal/adapter/command"
	"fsbridge/internal/infra/config"
	"fsbridge/internal/infra/logger"
	"fsbridge/internal/infra/tracer"
	"fsbridge/internal/security"
	"fsbridge/internal/usecase/eventbus"
)

// runtime holds the components shared by every subcommand that runs the
// file commands in this process.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	bus      *eventbus.Bus
	handler  *command.Handler
	registry *command.Registry

	audit      *security.FileAuditLogger
	unsubAudit func()
	retention  *cron.Cron

	closeLog       func() error
	shutdownTracer func(context.Context) error
}

// loadConfig reads the config named by --config and applies global flag
// overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logger.Level = lvl
	}
	return cfg, nil
}

// newRuntime wires logger, tracer, event bus, handler and registry. When
// keepStdoutFree is set the logger never writes to stdout.
func newRuntime(ctx context.Context, cfg *config.Config, keepStdoutFree bool) (*runtime, error) {
	logCfg := cfg.Logger
	if keepStdoutFree && strings.EqualFold(logCfg.Output, "stdout") {
		logCfg.Output = "stderr"
	}
	log, closeLog, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	opts := []command.HandlerOption{command.WithBaseDir(cfg.Commands.BaseDir)}
	if cfg.Commands.SandboxRoot != "" {
		sb, err := security.NewSandbox(cfg.Commands.SandboxRoot)
		if err != nil {
			shutdownTracer(ctx)
			closeLog()
			return nil, fmt.Errorf("init sandbox: %w", err)
		}
		opts = append(opts, command.WithSandbox(sb))
		log.Info("sandbox enabled", "root", sb.Root())
	}

	bus := eventbus.New(log)
	handler := command.NewHandler(command.NewLocalBackend(), log, opts...)
	registry := command.NewRegistry(log, bus)
	if err := command.RegisterFileCommands(registry, handler, log); err != nil {
		bus.Close()
		shutdownTracer(ctx)
		closeLog()
		return nil, fmt.Errorf("register commands: %w", err)
	}

	rt := &runtime{
		cfg:            cfg,
		logger:         log,
		bus:            bus,
		handler:        handler,
		registry:       registry,
		closeLog:       closeLog,
		shutdownTracer: shutdownTracer,
	}
	if cfg.Audit.Path != "" {
		if err := rt.startAudit(ctx); err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}
	return rt, nil
}

// startAudit opens the audit trail, trims it to the retention policy and
// subscribes it to command events.
func (rt *runtime) startAudit(ctx context.Context) error {
	maxSize, err := security.ParseRetentionMaxSize(rt.cfg.Audit.MaxSize)
	if err != nil {
		return fmt.Errorf("audit.max_size: %w", err)
	}
	audit, err := security.NewFileAuditLogger(rt.cfg.Audit.Path)
	if err != nil {
		return err
	}
	audit.SetRetention(security.RetentionPolicy{MaxAge: rt.cfg.Audit.MaxAge, MaxSize: maxSize})

	rt.audit = audit
	rt.enforceRetention(ctx)
	rt.unsubAudit = security.AuditCommands(rt.bus, audit, rt.logger)
	rt.logger.Info("audit trail enabled", "path", rt.cfg.Audit.Path)
	return nil
}

func (rt *runtime) enforceRetention(ctx context.Context) {
	removed, err := rt.audit.EnforceRetention(ctx)
	if err != nil {
		rt.logger.Warn("audit retention failed", "error", err)
		return
	}
	if removed > 0 {
		rt.logger.Info("audit retention applied", "removed", removed)
	}
}

// scheduleRetention re-applies the audit retention policy on
// audit.retention_schedule. Only long-running subcommands call it; it is a
// no-op without an audit trail or a schedule.
func (rt *runtime) scheduleRetention(ctx context.Context) error {
	if rt.audit == nil || rt.cfg.Audit.RetentionSchedule == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(rt.cfg.Audit.RetentionSchedule, func() { rt.enforceRetention(ctx) }); err != nil {
		return fmt.Errorf("audit.retention_schedule: %w", err)
	}
	c.Start()
	rt.retention = c
	rt.logger.Info("audit retention scheduled", "schedule", rt.cfg.Audit.RetentionSchedule)
	return nil
}

// Close stops the bus and the audit trail, flushes spans and closes the log
// output. A retention run in progress finishes first.
func (rt *runtime) Close(ctx context.Context) {
	if rt.retention != nil {
		<-rt.retention.Stop().Done()
	}
	if rt.unsubAudit != nil {
		rt.unsubAudit()
	}
	rt.bus.Close()
	if rt.audit != nil {
		_ = rt.audit.Close()
	}
	if err := rt.shutdownTracer(ctx); err != nil {
		rt.logger.Warn("tracer shutdown failed", "error", err)
	}
	_ = rt.closeLog()
}
