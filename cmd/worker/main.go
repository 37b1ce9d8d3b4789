package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/exchange"
	"github.com/signalgate/signalgate/internal/pkg/logger"
	"github.com/signalgate/signalgate/internal/queue"
	"github.com/signalgate/signalgate/internal/ratelimit"
	"github.com/signalgate/signalgate/internal/repository"
	"github.com/signalgate/signalgate/internal/service"
	"github.com/signalgate/signalgate/internal/vault"
	"github.com/signalgate/signalgate/internal/worker"
)

// The worker binary consumes the durable Redis queue. It shares the
// executor with the server; only the transport differs.
func main() {
	logger.Init("info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Redis.Addr == "" {
		log.Fatal("Worker requires redis; in-process mode runs the consumer inside the server")
	}

	db, err := repository.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("✅ Connected to PostgreSQL")

	redisClient, err := repository.NewRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	logger.Info("✅ Connected to Redis")

	v, err := vault.NewAESVault(cfg.Vault.Key)
	if err != nil {
		log.Fatalf("Failed to initialize credential vault: %v", err)
	}

	executor := service.NewExecutorService(
		repository.NewSignalRepo(db),
		repository.NewOrderRepo(db),
		repository.NewForwardedSignalRepo(db),
		repository.NewGuardrailEventRepo(db),
		repository.NewInstanceRepo(db),
		repository.NewExchangeAccountRepo(db),
		exchange.NewRegistry(cfg.Exchanges),
		v, cfg,
	).WithUsage(ratelimit.NewUsage(ratelimit.NewRedisStore(redisClient, "rl")))

	q := queue.NewRedisQueue(redisClient, cfg.Queue.Name, queue.Options{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase(),
		BackoffCap:  cfg.Queue.BackoffCap(),
		Concurrency: cfg.Queue.Concurrency,
	})
	worker.New(executor, cfg).Attach(q)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("🛑 Shutting down worker...")
		cancel()
	}()

	logger.Info("🚀 SignalGate worker started", "queue", cfg.Queue.Name)
	if err := q.Start(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Consumer stopped: %v", err)
	}
	logger.Info("Worker exiting")
}
