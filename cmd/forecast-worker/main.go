package main

import (
	"context"
	"os"
	"time"

	"cashflow/internal/cli"
	"cashflow/internal/log"
	"cashflow/internal/services"
	"cashflow/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting forecast-worker", "shards", cfg.ProjectorShards, "queue", cfg.AMQPQueue)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient := cli.InitAMQP(logger, cfg)
	defer amqpClient.Close()

	statements, caches := cli.InitStatementCache(cfg)
	defer caches.Stop()

	forecasts := services.NewForecastService(repo, statements, logger)
	projector := worker.NewProjectionWorker(forecasts, cfg.ProjectorShards)

	// Cancelling the context is the whole shutdown: lanes finish their
	// current event and unacked deliveries go back to the broker.
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {})

	if err := projector.Run(ctx, amqpClient, cfg.Prefetch); err != nil {
		logger.Error("Projection worker stopped", "error", err)
		os.Exit(1)
	}
	<-done
	logger.Info("Worker shutdown complete")
}
