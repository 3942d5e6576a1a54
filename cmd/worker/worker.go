package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"legal-doc-intelligence/internal/blobstore"
	"legal-doc-intelligence/internal/config"
	"legal-doc-intelligence/internal/ledger"
	"legal-doc-intelligence/internal/lockcache"
	"legal-doc-intelligence/internal/logger"
	"legal-doc-intelligence/internal/providers"
	"legal-doc-intelligence/internal/router"
	"legal-doc-intelligence/internal/store"
	"legal-doc-intelligence/internal/sweeper"
	"legal-doc-intelligence/internal/telemetry"
	"legal-doc-intelligence/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	st := store.New(mongoClient.Database(cfg.DBName))
	lg := ledger.New(mongoClient.Database(cfg.DBName))
	blobs := blobstore.New(cfg.FileStorageDir)
	rt := router.New(cfg.PDFChunkThresholdPages, cfg.PDFChunkSizePages, cfg.MaxPages)
	ocrClient := providers.NewOCRClient(cfg)
	embeddingClient := providers.NewEmbeddingClient(cfg)
	extractionClient := providers.NewExtractionClient(cfg)
	queryCache := lockcache.NewQueryCache(rdb, time.Duration(cfg.CacheQueryTTLSeconds)*time.Second)

	processor := worker.NewTaskProcessor(st, lg, blobs, rt, ocrClient, embeddingClient, extractionClient, queryCache, rdb, queueClient, cfg)
	mux := worker.NewServeMux(processor)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("metrics init failed", "error", err)
	}

	sw := sweeper.New(st, lg, blobs, queueClient, cfg, metrics)
	sched := sweeper.NewScheduler()
	if err := sw.Register(sched); err != nil {
		log.Fatal("Failed to register sweeper jobs:", err)
	}
	sched.Start()
	defer sched.Stop()

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				worker.QueueCritical: 6,
				worker.QueueDefault:  3,
				worker.QueueLow:      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "task_type", task.Type(), "error", err)
			}),
		},
	)

	logger.Info("worker starting", "concurrency", cfg.WorkerConcurrency, "redis", cfg.RedisURL)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
