package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/awards/internal/bootstrap"
	infraRedis "github.com/cassiomorais/awards/internal/infrastructure/redis"
	"github.com/cassiomorais/awards/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "awards-worker", "awards_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCfg := app.Config.Worker
	settleCfg := app.Config.Settlement
	producer := infraRedis.NewStreamProducer(app.Redis)

	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.SettlementStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
		os.Exit(1)
	}

	relay := worker.NewOutboxRelay(app.TxManager, app.Outbox, producer, int(workerCfg.BatchSize), app.Metrics, app.Logger)
	confirmer := worker.NewPushConfirmer(consumer, producer, app.Settlement, app.Locker, worker.PushConfig{
		LockTTL: bootstrap.PushLockTTL(settleCfg),
	}, app.Metrics, app.Logger)
	janitor := worker.NewJanitor(app.Outbox, app.Idempotency, workerCfg.OutboxRetention, app.Logger)

	app.Logger.Info().
		Str("stream", infraRedis.SettlementStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Dur("reconcile_interval", settleCfg.ReconcileInterval).
		Msg("Worker started")

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Outbox relay (outbox table -> settlement stream).
	g.Go(func() error {
		return relay.Run(gCtx, workerCfg.OutboxPollInterval)
	})

	// 2. Push confirmations (settlement stream -> provider polling).
	g.Go(func() error {
		return confirmer.Run(gCtx)
	})

	// 3. Reconciler for everything no webhook or poll settled.
	g.Go(func() error {
		return app.Reconciler.Run(gCtx, settleCfg.ReconcileInterval)
	})

	// 4. Table maintenance.
	g.Go(func() error {
		return janitor.Run(gCtx, time.Hour)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
