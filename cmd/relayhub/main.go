package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/relayhub/core/bridge"
	"github.com/dmitrymomot/relayhub/core/config"
	"github.com/dmitrymomot/relayhub/core/gateway"
	"github.com/dmitrymomot/relayhub/core/logger"
	"github.com/dmitrymomot/relayhub/core/relay"
	"github.com/dmitrymomot/relayhub/core/server"
	"github.com/dmitrymomot/relayhub/integration/database/redis"
	"github.com/dmitrymomot/relayhub/pkg/ratelimiter"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg Config
	config.MustLoad(&cfg) // panic on error

	log := newLogger(cfg, os.Stdout)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Relay hub failed", logger.Error(err))
		os.Exit(1)
	}

	log.Info("Relay hub stopped")
}

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	opts := []logger.Option{logger.WithEnvironment(cfg.AppEnv, cfg.AppName), logger.WithOutput(w)}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevelString(cfg.LogLevel))
	}
	if cfg.LogFormat != "" {
		opts = append(opts, logger.WithFormat(cfg.LogFormat))
	}
	return logger.New(opts...)
}

// run wires the hub and blocks until ctx is cancelled or a component fails.
// Listeners stop first and close their sessions; the distributor is closed last.
func run(ctx context.Context, cfg Config, log *slog.Logger) error {
	dist, hub, err := relay.NewFromConfig(cfg.Relay, log)
	if err != nil {
		return err
	}

	srvOpts := []server.Option{server.WithLogger(log)}
	var limiter *ratelimiter.Limiter
	if cfg.ConnLimit.Enabled() {
		limiter, err = ratelimiter.New(cfg.ConnLimit, ratelimiter.WithLogger(log))
		if err != nil {
			return err
		}
		srvOpts = append(srvOpts, server.WithAdmission(limiter))
	}

	srv, err := server.NewFromConfig(cfg.Server, srvOpts...)
	if err != nil {
		return err
	}

	var (
		brg       *bridge.Bridge
		readiness []func(context.Context) error
	)
	if cfg.Bridge.Enabled {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		brg, err = bridge.NewFromConfig(cfg.Bridge, hub, bridge.NewRedisBroker(client), bridge.WithLogger(log))
		if err != nil {
			return err
		}
		readiness = append(readiness, redis.Healthcheck(client), brg.Healthcheck)
	}

	var gw *gateway.Gateway
	if cfg.Gateway.Enabled() {
		gw, err = gateway.NewFromConfig(cfg.Gateway, hub,
			gateway.WithLogger(log),
			gateway.WithReadinessCheck(readiness...))
		if err != nil {
			return err
		}
	}

	// The distributor outlives the listeners so sessions can finish cleanly.
	distCtx, closeDist := context.WithCancel(context.WithoutCancel(ctx))
	defer closeDist()

	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	distDone := make(chan error, 1)
	go func() {
		err := dist.Run(distCtx)()
		if err != nil {
			abort(err)
		}
		distDone <- err
	}()

	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(srv.Run(egCtx, hub))
	if gw != nil {
		eg.Go(gw.Run(egCtx))
	}
	if brg != nil {
		eg.Go(brg.Run(egCtx))
	}
	if limiter != nil {
		eg.Go(limiter.Run(egCtx))
	}

	err = eg.Wait()

	closeDist()
	return errors.Join(err, <-distDone)
}
