package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/exchange"
	"github.com/signalgate/signalgate/internal/handler"
	"github.com/signalgate/signalgate/internal/ipallow"
	"github.com/signalgate/signalgate/internal/middleware"
	"github.com/signalgate/signalgate/internal/pkg/logger"
	"github.com/signalgate/signalgate/internal/queue"
	"github.com/signalgate/signalgate/internal/ratelimit"
	"github.com/signalgate/signalgate/internal/repository"
	"github.com/signalgate/signalgate/internal/service"
	"github.com/signalgate/signalgate/internal/vault"
	"github.com/signalgate/signalgate/internal/worker"
)

func main() {
	logger.Init("info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := repository.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("✅ Connected to PostgreSQL")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedis(cfg)
		if err != nil {
			logger.Error("⚠️ Redis unavailable, falling back to in-process queue and limits", "error", err.Error())
			redisClient = nil
		} else {
			logger.Info("✅ Connected to Redis")
		}
	}

	v, err := vault.NewAESVault(cfg.Vault.Key)
	if err != nil {
		log.Fatalf("Failed to initialize credential vault: %v", err)
	}

	signalRepo := repository.NewSignalRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	forwardRepo := repository.NewForwardedSignalRepo(db)
	eventRepo := repository.NewGuardrailEventRepo(db)
	instanceRepo := repository.NewInstanceRepo(db)
	accountRepo := repository.NewExchangeAccountRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	registry := exchange.NewRegistry(cfg.Exchanges)

	var limitStore ratelimit.Store
	if redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient, "rl")
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}

	executor := service.NewExecutorService(
		signalRepo, orderRepo, forwardRepo, eventRepo,
		instanceRepo, accountRepo, registry, v, cfg,
	).WithUsage(ratelimit.NewUsage(limitStore))

	opts := queue.Options{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase(),
		BackoffCap:  cfg.Queue.BackoffCap(),
		Concurrency: cfg.Queue.Concurrency,
	}

	// With Redis the queue is durable and a separate worker binary
	// consumes it; without it delivery runs in-process.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var q queue.Queue
	if redisClient != nil {
		q = queue.NewRedisQueue(redisClient, cfg.Queue.Name, opts)
	} else {
		mq := queue.NewMemoryQueue(cfg.Queue.Name, opts)
		worker.New(executor, cfg).Attach(mq)
		go func() {
			if err := mq.Start(ctx); err != nil {
				logger.Error("in-process consumer stopped", "error", err.Error())
			}
		}()
		q = mq
	}

	pipeline := service.NewPipelineService(signalRepo, instanceRepo, q)
	broker := service.NewBrokerService(executor, instanceRepo)
	auditSvc := service.NewAuditService(auditRepo)

	webhookLimiter := ratelimit.New(limitStore, cfg.RateLimit.WebhookPerMinute, time.Minute)
	brokerLimiter := ratelimit.New(limitStore, cfg.RateLimit.BrokerPerMinute, time.Minute)

	resolver := ipallow.New(
		cfg.IPAllow.Sources,
		cfg.IPAllow.File,
		time.Duration(cfg.IPAllow.ReloadMinutes)*time.Minute,
		cfg.IPAllow.DevBypass,
	)

	webhookHandler := handler.NewWebhookHandler(pipeline)
	brokerHandler := handler.NewBrokerHandler(broker)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.AuditMiddleware(auditSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "signalgate"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	hooks := r.Group("/v1/hooks")
	hooks.Use(middleware.SourceVerification(cfg, resolver, eventRepo))
	hooks.Use(middleware.RateLimit(webhookLimiter, eventRepo, middleware.WebhookKey))
	{
		hooks.POST("/:id", webhookHandler.Receive)
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg))
	v1.Use(middleware.RateLimit(brokerLimiter, eventRepo, middleware.BrokerKey))
	{
		v1.POST("/instances/:id/orders", brokerHandler.PlaceOrder)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 SignalGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	cancel()
	auditSvc.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}
