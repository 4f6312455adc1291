package main

// ---------------------------------------------------------------------------
// cmd_run.go — start the enforcement daemon
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghost-edr/enforcer/internal/api"
	"github.com/ghost-edr/enforcer/internal/core"
	"github.com/ghost-edr/enforcer/internal/runtime"
)

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	logLevel := fs.String("log-level", "", "Log level override: debug, info, warn, error")
	dryRun := fs.Bool("dry-run", false, "Don't execute actions, just log what would happen")
	port := fs.Int("port", 0, "HTTP alert receiver port override")
	fs.Parse(args)

	rawCfg, err := core.LoadConfig(envConfig(*configPath))
	if err != nil {
		errorf("loading config: %v", err)
	}
	if *logLevel != "" {
		rawCfg.LogLevel = *logLevel
	}
	if *dryRun {
		rawCfg.DryRun = true
	}
	if *port != 0 {
		rawCfg.Receiver.Port = *port
	}

	cfg, err := rawCfg.Resolve()
	if err != nil {
		errorf("resolving config: %v", err)
	}

	logger := buildLogger(cfg)
	if cfg.DryRun {
		logger.Warn().Msg("running in dry-run mode, no actions will be executed")
	}

	rt, err := runtime.Detect(cfg.Runtime.Type, cfg.Runtime.Socket, logger)
	if err != nil {
		errorf("detecting container runtime: %v", err)
	}
	logger.Info().Str("runtime", rt.Name()).Msg("container runtime detected")

	var bus *core.EventBus
	if cfg.Bus.Enabled {
		bus, err = core.NewEventBus(&cfg.Bus, logger)
		if err != nil {
			errorf("starting event bus: %v", err)
		}
	}

	engine := core.NewPolicyEngine(cfg, logger, core.NewMetrics(), auditBus(bus))
	engine.RegisterExecutor(core.ActionLogOnly, &core.LogOnlyExecutor{Logger: logger})
	engine.RegisterExecutor(core.ActionWebhook, &core.WebhookExecutor{Logger: logger, DefaultURL: cfg.WebhookURL})
	engine.RegisterExecutor(core.ActionKill, &core.KillExecutor{Logger: logger, Runtime: rt})
	engine.RegisterExecutor(core.ActionQuarantine, &core.QuarantineExecutor{Logger: logger, Runtime: rt})

	if err := engine.ValidateActions(); err != nil {
		errorf("validating policies: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := api.NewServer(ctx, cfg, engine, rt, logger)
	srv.Start()

	logger.Info().
		Str("addr", srv.Addr()).
		Int("policies", engine.PolicyCount()).
		Bool("dry_run", cfg.DryRun).
		Msg("ghost-enforcer running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	cancel()
	if err := srv.Stop(); err != nil {
		logger.Error().Err(err).Msg("error stopping receiver")
	}
	if bus != nil {
		if err := bus.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing event bus")
		}
	}
	if d, ok := rt.(*runtime.Docker); ok {
		_ = d.Close()
	}
	logger.Info().Msg("ghost-enforcer stopped")
}

// auditBus converts a possibly-nil *EventBus into the engine's publisher
// interface without producing a non-nil interface around a nil pointer.
func auditBus(bus *core.EventBus) core.AuditPublisher {
	if bus == nil {
		return nil
	}
	return bus
}
