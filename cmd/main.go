package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"legal-doc-intelligence/internal/auth"
	"legal-doc-intelligence/internal/blobstore"
	"legal-doc-intelligence/internal/config"
	"legal-doc-intelligence/internal/ledger"
	"legal-doc-intelligence/internal/logger"
	"legal-doc-intelligence/internal/realtime"
	"legal-doc-intelligence/internal/store"
	"legal-doc-intelligence/internal/telemetry"
	"legal-doc-intelligence/middleware"
	"legal-doc-intelligence/routes"
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
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisURL, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	shutdownTracer, err := telemetry.InitTracer("legal-doc-intelligence")
	if err != nil {
		logger.Warn("tracing init failed", "error", err)
	} else {
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("metrics init failed", "error", err)
	}

	db := mongoClient.Database(cfg.DBName)
	st := store.New(db)
	lg := ledger.New(db)
	blobs := blobstore.New(cfg.FileStorageDir)
	authorizer := auth.NewJWTAuthorizer(rdb, st)

	wsManager := realtime.NewManager()
	subscriber := realtime.NewSubscriber(rdb, wsManager)
	subCtx, subCancel := context.WithCancel(context.Background())
	go func() {
		if err := subscriber.Run(subCtx); err != nil && err != context.Canceled {
			logger.Error("realtime subscriber stopped", "error", err)
		}
	}()
	defer subCancel()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered", "error", recovered, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "an unexpected error occurred"})
		c.Abort()
	}))
	r.MaxMultipartMemory = cfg.MaxFileSize

	r.Use(middleware.TracingMiddleware())
	r.Use(middleware.EnrichTrace())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ManualTracing())
	if metrics != nil {
		r.Use(middleware.MetricsMiddleware(metrics))
	}
	r.Use(middleware.RequestSizeLimit(cfg.MaxFileSize))
	r.Use(middleware.RateLimitMiddleware(rdb, cfg))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		health := gin.H{"status": "healthy", "timestamp": time.Now()}
		if err := mongoClient.Ping(ctx, nil); err != nil {
			health["status"], health["mongodb"] = "unhealthy", err.Error()
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			health["status"], health["redis"] = "unhealthy", err.Error()
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
		c.JSON(http.StatusOK, health)
	})
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if mongoClient.Ping(ctx, nil) != nil || rdb.Ping(ctx).Err() != nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.Status(http.StatusOK)
	})

	routes.Register(r, st, lg, blobs, queueClient, rdb, authorizer, wsManager, cfg)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		logger.Info("api server starting", "port", cfg.Port, "gin_mode", cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	logger.Info("server exited")
}
