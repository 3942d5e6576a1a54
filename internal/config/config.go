// Package config centralizes every pipeline tunable into one struct,
// built once at process start and injected into every component rather
// than read from globals scattered across the codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Metadata store / broker
	MongoURI string
	DBName   string
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Auth (contract only)
	JWTSecret    string
	JWTExpiresIn string

	// HTTP surface (out of core, thin contract)
	Port        string
	GinMode     string
	CORSOrigins []string

	// Object store
	FileStorageDir string
	MaxFileSize    int64
	AllowedTypes   []string

	// C1 Router & Chunker
	PDFChunkThresholdPages int
	PDFChunkSizePages      int
	MaxPages               int

	// C3 Worker Pool & Task Runner
	WorkerConcurrency  int
	TaskHardTimeoutS   int
	TaskSoftTimeoutS   int
	CPUPoolSize        int

	// C2 Job Ledger / C6 Recovery
	JobStaleTimeoutMinutes    int
	ChunkStaleTimeoutMinutes  int
	JobMaxRecoveryRetries     int
	ChunkRetentionHours       int

	// C5 Lock & Cache
	ChunkLockTTLSeconds int
	CacheQueryTTLSeconds int

	// C4 Pipeline chunking
	ChunkParentTokens int
	ChunkChildTokens  int
	ChunkOverlapPct   float64
	ChunkMinSizeTokens int

	// bbox<->chunk fuzzy linking, entity/act dedup (tunable heuristics)
	BBoxLinkFuzzyThreshold   float64
	EntityDedupFuzzyThreshold float64

	// OCR quality thresholds
	OCRQualityGoodThreshold float64
	OCRQualityFairThreshold float64

	// Provider (LP) rate limits — one entry per logical provider
	OCRProviderURL            string
	OCRProviderMaxConcurrent  int
	OCRProviderMinDelayS      float64
	OCRProviderRPM            int
	EmbeddingProviderURL           string
	EmbeddingProviderMaxConcurrent int
	EmbeddingProviderMinDelayS     float64
	EmbeddingProviderRPM           int
	ExtractionProviderURL           string
	ExtractionProviderMaxConcurrent int
	ExtractionProviderMinDelayS     float64
	ExtractionProviderRPM           int

	// Realtime fan-out
	WebSocketPingIntervalS int

	// HTTP request throttling
	RateLimitReqs   int
	RateLimitWindow int
}

func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/legal_doc_intel"),
		DBName:   getEnv("DB_NAME", "legal_doc_intel"),
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiresIn: getEnv("JWT_EXPIRES_IN", "24h"),

		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),
		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 104857600),
		AllowedTypes:   strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf"), ","),

		PDFChunkThresholdPages: getEnvInt("PDF_CHUNK_THRESHOLD_PAGES", 15),
		PDFChunkSizePages:      getEnvInt("PDF_CHUNK_SIZE_PAGES", 15),
		MaxPages:               getEnvInt("MAX_PAGES", 10000),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 50),
		TaskHardTimeoutS:  getEnvInt("TASK_HARD_TIMEOUT_S", 3600),
		TaskSoftTimeoutS:  getEnvInt("TASK_SOFT_TIMEOUT_S", 3300),
		CPUPoolSize:       getEnvInt("CPU_POOL_SIZE", 4),

		JobStaleTimeoutMinutes:   getEnvInt("JOB_STALE_TIMEOUT_MINUTES", 30),
		ChunkStaleTimeoutMinutes: getEnvInt("CHUNK_STALE_TIMEOUT_MINUTES", 5),
		JobMaxRecoveryRetries:    getEnvInt("JOB_MAX_RECOVERY_RETRIES", 3),
		ChunkRetentionHours:      getEnvInt("CHUNK_RETENTION_HOURS", 24),

		ChunkLockTTLSeconds:  getEnvInt("CHUNK_LOCK_TTL_S", 120),
		CacheQueryTTLSeconds: getEnvInt("CACHE_QUERY_TTL_S", 3600),

		ChunkParentTokens:  getEnvInt("CHUNK_PARENT_TOKENS", 1750),
		ChunkChildTokens:   getEnvInt("CHUNK_CHILD_TOKENS", 550),
		ChunkOverlapPct:    getEnvFloat64("CHUNK_OVERLAP_PCT", 0.14),
		ChunkMinSizeTokens: getEnvInt("CHUNK_MIN_SIZE_TOKENS", 50),

		BBoxLinkFuzzyThreshold:    getEnvFloat64("BBOX_LINK_FUZZY_THRESHOLD", 80),
		EntityDedupFuzzyThreshold: getEnvFloat64("ENTITY_DEDUP_FUZZY_THRESHOLD", 85),

		OCRQualityGoodThreshold: getEnvFloat64("OCR_QUALITY_GOOD_THRESHOLD", 0.85),
		OCRQualityFairThreshold: getEnvFloat64("OCR_QUALITY_FAIR_THRESHOLD", 0.70),

		OCRProviderURL:           getEnv("OCR_PROVIDER_URL", "http://localhost:8001"),
		OCRProviderMaxConcurrent: getEnvInt("OCR_PROVIDER_MAX_CONCURRENT", 8),
		OCRProviderMinDelayS:     getEnvFloat64("OCR_PROVIDER_MIN_DELAY_S", 0.1),
		OCRProviderRPM:           getEnvInt("OCR_PROVIDER_RPM", 60),

		EmbeddingProviderURL:           getEnv("EMBEDDING_PROVIDER_URL", "http://localhost:8002"),
		EmbeddingProviderMaxConcurrent: getEnvInt("EMBEDDING_PROVIDER_MAX_CONCURRENT", 16),
		EmbeddingProviderMinDelayS:     getEnvFloat64("EMBEDDING_PROVIDER_MIN_DELAY_S", 0.02),
		EmbeddingProviderRPM:           getEnvInt("EMBEDDING_PROVIDER_RPM", 600),

		ExtractionProviderURL:           getEnv("EXTRACTION_PROVIDER_URL", "http://localhost:8003"),
		ExtractionProviderMaxConcurrent: getEnvInt("EXTRACTION_PROVIDER_MAX_CONCURRENT", 8),
		ExtractionProviderMinDelayS:     getEnvFloat64("EXTRACTION_PROVIDER_MIN_DELAY_S", 0.1),
		ExtractionProviderRPM:           getEnvInt("EXTRACTION_PROVIDER_RPM", 60),

		WebSocketPingIntervalS: getEnvInt("WEBSOCKET_PING_INTERVAL_S", 30),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW_S", 60),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
