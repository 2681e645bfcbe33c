package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cashflow/internal/cli"
	apphttp "cashflow/internal/http"
	"cashflow/internal/log"
	"cashflow/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient := cli.InitAMQP(logger, cfg)
	defer amqpClient.Close()

	statements, caches := cli.InitStatementCache(cfg)
	defer caches.Stop()

	ledgers := services.NewLedgerService(repo, amqpClient, logger)
	forecasts := services.NewForecastService(repo, statements, logger)

	outboxCfg := services.DefaultOutboxProcessorConfig()
	outboxCfg.PollInterval = cfg.OutboxPollInterval
	outboxCfg.BatchSize = cfg.OutboxBatchSize
	outbox := services.NewOutboxProcessor(repo, amqpClient, outboxCfg)

	srv := apphttp.NewServer(":"+cfg.Port, ledgers, forecasts, apphttp.Options{
		Logger: logger,
		Readiness: []apphttp.ReadinessCheck{
			{Name: "database", Check: repo.Ping},
			{Name: "broker", Check: func(context.Context) error { return amqpClient.Ping() }},
		},
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := outbox.Stop(ctx); err != nil {
			logger.Error("Outbox shutdown error", "error", err)
		}
	})

	if err := outbox.Start(ctx); err != nil {
		logger.Error("Failed to start outbox processor", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting cashflow server", "port", cfg.Port, "db", cfg.SQLiteDBPath, "exchange", cfg.AMQPExchange)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
