// Package cli holds the start-up and shutdown steps shared by cmd/cashflow
// and cmd/forecast-worker. Helpers exit the process on failure.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cashflow/internal/amqp"
	"cashflow/internal/cache"
	"cashflow/internal/config"
	"cashflow/internal/core"
	"cashflow/internal/forecast"
	"cashflow/internal/log"
	"cashflow/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    log.ParseFormat(cfg.LogFormat),
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// Bootstrap loads .env and the configuration, sets up logging and validates
// the configuration.
func Bootstrap(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitSQLite opens the event store, applying migrations.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// InitAMQP connects to the broker and declares the event topology.
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqp.Options{
		PublishTimeout: cfg.PublishTimeout,
	})
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err, "exchange", cfg.AMQPExchange)
		os.Exit(1)
	}
	return client
}

// InitStatementCache creates the forecast statement cache and registers it
// with a manager that evicts expired entries every minute. Stop the manager
// on shutdown.
func InitStatementCache(cfg *config.Config) (*cache.LRUCache[core.LedgerID, *forecast.Statement], *cache.Manager) {
	statements := cache.NewLRUCache[core.LedgerID, *forecast.Statement](cfg.StatementCacheSize, cfg.StatementCacheTTL)
	manager := cache.NewManager()
	manager.Register("statements", statements)
	manager.StartCleanup(time.Minute)
	return statements, manager
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs first with a context bounded by timeout; done is closed once it has
// returned.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			return
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()
	}()

	return ctx, done
}
