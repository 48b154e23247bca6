package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"doc_gateway/internal/auth"
	"doc_gateway/internal/backend"
	"doc_gateway/internal/config"
	"doc_gateway/internal/httpapi"
	"doc_gateway/internal/jobs"
	"doc_gateway/internal/ledger"
	"doc_gateway/internal/logging"
	"doc_gateway/internal/payment"
	"doc_gateway/internal/queue"
	"doc_gateway/internal/ratelimit"
	"doc_gateway/internal/results"
	"doc_gateway/internal/storage"
	"doc_gateway/internal/utils"
)

const dispatchQueueName = "conversions"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger("gateway", utils.Info)

	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		APIKeyCacheSize: cfg.Database.APIKeyCacheSize,
		APIKeyCacheTTL:  cfg.Database.APIKeyCacheTTL,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	cancelSchema()

	// Redis backs the rate limiter and the dispatch queue when configured;
	// without it the gateway runs standalone on in-memory equivalents.
	var (
		redisClient *redis.Client
		limiter     ratelimit.Limiter
		dispatchQ   queue.Queue
		dlq         queue.DeadLetterQueue
	)
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		defer redisClient.Close()

		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit, utils.NewLogger("ratelimit", utils.Info))

		q, err := queue.NewRedisQueue(&queue.Config{
			QueueName:     dispatchQueueName,
			RedisAddr:     cfg.Redis.Address,
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatalf("Failed to connect queue to Redis: %v", err)
		}
		dispatchQ = q
		dlq = queue.NewRedisDeadLetterQueue(redisClient, dispatchQueueName)
	} else {
		logger.Warn("REDIS_ADDRESS not set, using in-memory rate limiter and queue")
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit)
		dispatchQ = queue.NewMemoryQueue(queue.DefaultConfig(dispatchQueueName))
		dlq = queue.NewMemoryDeadLetterQueue()
	}

	var resultStore results.Store
	if cfg.Results.Store == "s3" {
		s3Ctx, cancelS3 := context.WithTimeout(context.Background(), 30*time.Second)
		store, err := results.NewS3Store(s3Ctx, cfg.Results.S3Bucket, cfg.Results.S3Region, cfg.Results.S3Prefix, cfg.Results.EncryptionKey)
		cancelS3()
		if err != nil {
			log.Fatalf("Failed to initialize S3 result store: %v", err)
		}
		resultStore = store
	} else {
		resultStore = results.NewMemoryStore()
	}

	registry := auth.NewRegistry(db.NewAPIKeyRepository())
	ledgerSvc := ledger.NewService(db.NewLedgerRepository(), utils.NewLogger("ledger", utils.Info))
	backendClient := backend.NewClient(cfg.Backend, utils.NewLogger("backend", utils.Info))
	paymentClient := payment.NewClient(cfg.Payment, utils.NewLogger("payment", utils.Info))

	tracker := jobs.NewTracker(db.NewJobRepository(), ledgerSvc, resultStore, dispatchQ, utils.NewLogger("jobs", utils.Info))

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	pool := jobs.NewWorkerPool(tracker, dispatchQ, dlq, backendClient, cfg.Jobs.Workers, utils.NewLogger("job-worker", utils.Info))
	pool.Start(workerCtx)

	reconciler := jobs.NewReconciler(tracker, cfg.Jobs, utils.NewLogger("reconciler", utils.Info))
	reconciler.Start(workerCtx)

	audit, err := logging.NewAuditLogger(
		cfg.RequestLogger.FilePathTemplate,
		cfg.RequestLogger.MaxSize,
		cfg.RequestLogger.MaxFiles,
		cfg.RequestLogger.BufferSize,
		cfg.RequestLogger.FlushInterval,
	)
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}

	router := httpapi.NewRouter(&httpapi.Dependencies{
		Config:     cfg,
		Registry:   registry,
		Ledger:     ledgerSvc,
		Limiter:    limiter,
		Tracker:    tracker,
		Backend:    backendClient,
		Payment:    paymentClient,
		AdminUsers: db.NewAdminUserRepository(),
		Audit:      audit,
		Logger:     logger,
		Health:     db.Health,
	})

	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Sync conversions hold the response open for the whole backend call.
		WriteTimeout: cfg.Backend.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("gateway listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop producing, then drain: reconciler and workers first, queue after.
	reconciler.Stop()
	cancelWorkers()
	pool.Stop()
	_ = dispatchQ.Close()
	_ = dlq.Close()

	audit.Shutdown()

	logger.Info("gateway exited")
}
