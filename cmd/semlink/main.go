// Package main implements the semlink binary. It keeps a resilient broker session,
// subscribes to the configured topic patterns and records the last message seen on
// each topic in the configured key-value store, serving metrics and health over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/semlink/broker"
	"github.com/c360/semlink/config"
	"github.com/c360/semlink/health"
	"github.com/c360/semlink/kvstore"
	"github.com/c360/semlink/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semlink"
)

const (
	healthInterval    = 10 * time.Second
	recorderQueueSize = 1024
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		stop()
		os.Exit(1)
	}
}

// app holds the running components
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	monitor  *health.Monitor
	manager  *broker.Manager
	store    *kvstore.Store
	recorder *recorder
	server   *metric.Server
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if cliCfg.ShowHelp {
		fs.Usage()
		return nil
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return err
	}

	logger := setupLogger(stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPaths)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.Redacted())
		return nil
	}

	a, err := build(cfg, logger)
	if err != nil {
		return err
	}
	return a.run(ctx, cliCfg.ShutdownTimeout)
}

func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range paths {
		loader.AddLayer(path)
	}
	loader.EnableValidation(true)
	return loader.Load()
}

// build wires configuration into the broker manager, store and metrics server
func build(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		monitor:  health.NewMonitor(),
	}

	store, err := newStore(cfg.Store, a.registry, logger, storeEvents{logger: logger})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	a.store = store
	a.recorder = newRecorder(store, logger, a.registry, recorderQueueSize)

	dialer, err := newDialer(cfg.Broker, logger)
	if err != nil {
		return nil, fmt.Errorf("create broker dialer: %w", err)
	}
	manager, err := broker.New(managerConfig(cfg.Broker), dialer,
		broker.WithName(cfg.Broker.Transport),
		broker.WithLogger(logger),
		broker.WithMetrics(a.registry),
		broker.WithObserver(brokerEvents{logger: logger}))
	if err != nil {
		return nil, fmt.Errorf("create broker manager: %w", err)
	}
	a.manager = manager

	a.monitor.OnTransition(func(prev, next health.Status) {
		if next.IsHealthy() {
			logger.Info("Component healthy", "component", next.Component, "was", prev.Status)
			return
		}
		logger.Warn("Component health changed", "component", next.Component,
			"status", next.Status, "was", prev.Status, "message", next.Message)
	})
	a.monitor.Register("broker", manager)
	if store != nil {
		a.monitor.Register("store", store)
	}
	if cfg.Metrics.Enabled {
		a.server = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.registry, a.monitor)
	}
	return a, nil
}

// run subscribes, connects and blocks until ctx is cancelled, then shuts down
func (a *app) run(ctx context.Context, shutdownTimeout time.Duration) error {
	handler := a.recorder.Handler()
	for _, pattern := range a.cfg.Broker.Subscriptions {
		if err := a.manager.RegisterHandler(ctx, pattern, handler); err != nil {
			return fmt.Errorf("subscribe %q: %w", pattern, err)
		}
	}
	if err := a.recorder.Start(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			serverErr <- a.server.Start()
		}()
		a.logger.Info("Metrics server started", "address", a.server.Address())
	}

	go a.monitor.Run(ctx, healthInterval)

	runErr := a.manager.Connect()
	if runErr == nil {
		a.logger.Info("Started",
			"transport", a.cfg.Broker.Transport,
			"subscriptions", len(a.cfg.Broker.Subscriptions),
			"store", a.cfg.Store.Backend)

		select {
		case <-ctx.Done():
			a.logger.Info("Shutdown signal received")
		case err := <-serverErr:
			if err != nil {
				runErr = fmt.Errorf("metrics server: %w", err)
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

// shutdown stops components in reverse dependency order
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.manager.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disconnect broker: %w", err))
	}
	if err := a.recorder.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain recorder: %w", err))
	}
	if a.store != nil {
		if err := a.store.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown store: %w", err))
		}
	}
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}
	if len(errs) == 0 {
		a.logger.Info("Shutdown complete")
	}
	return errors.Join(errs...)
}
