// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// SchedulerConfig provides settings for the asynq queue and workers.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetWorkerConcurrency() int
	GetIngestQueueWeight() int
	GetConversationQueueWeight() int
	GetScanInterval() time.Duration
}

// WhatsAppConfig provides settings for the outbound messaging gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
	GetWhatsAppSendRate() float64
}

// AIConfig provides settings for LLM chat providers.
type AIConfig interface {
	GetAIProvider() string
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetChatBaseURL() string
	GetChatAPIKey() string
	GetChatModel() string
	GetAITimeout() time.Duration
}

// StorageConfig provides settings for MinIO S3-compatible storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetUploadBucket() string
	IsMinIOEnabled() bool
}

// IngestConfig provides ingestion engine settings.
type IngestConfig interface {
	GetIngestChunkSize() int
	GetFetchTimeout() time.Duration
}

// ConversationConfig provides conversation orchestration settings.
type ConversationConfig interface {
	GetFollowupAge() time.Duration
	GetHistoryWindow() int
}

// =============================================================================
// Config Implementation
// =============================================================================

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env string

	DatabaseURL string

	RedisURL                string
	RedisTLSInsecure        bool
	WorkerConcurrency       int
	IngestQueueWeight       int
	ConversationQueueWeight int
	ScanInterval            time.Duration

	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string
	WhatsAppSendRate float64

	AIProvider   string
	GeminiAPIKey string
	GeminiModel  string
	ChatBaseURL  string
	ChatAPIKey   string
	ChatModel    string
	AITimeout    time.Duration

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	UploadBucket   string

	IngestChunkSize int
	FetchTimeout    time.Duration

	FollowupAge   time.Duration
	HistoryWindow int
}

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetWorkerConcurrency() int       { return c.WorkerConcurrency }
func (c *Config) GetIngestQueueWeight() int       { return c.IngestQueueWeight }
func (c *Config) GetConversationQueueWeight() int { return c.ConversationQueueWeight }
func (c *Config) GetScanInterval() time.Duration  { return c.ScanInterval }

func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }
func (c *Config) GetWhatsAppSendRate() float64 {
	if c.WhatsAppSendRate <= 0 {
		return 1
	}
	return c.WhatsAppSendRate
}

func (c *Config) GetAIProvider() string       { return c.AIProvider }
func (c *Config) GetGeminiAPIKey() string     { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string      { return c.GeminiModel }
func (c *Config) GetChatBaseURL() string      { return c.ChatBaseURL }
func (c *Config) GetChatAPIKey() string       { return c.ChatAPIKey }
func (c *Config) GetChatModel() string        { return c.ChatModel }
func (c *Config) GetAITimeout() time.Duration { return c.AITimeout }

func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetUploadBucket() string   { return c.UploadBucket }
func (c *Config) IsMinIOEnabled() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

func (c *Config) GetIngestChunkSize() int {
	if c.IngestChunkSize < 1 {
		return 250
	}
	return c.IngestChunkSize
}

func (c *Config) GetFetchTimeout() time.Duration { return c.FetchTimeout }

func (c *Config) GetFollowupAge() time.Duration { return c.FollowupAge }
func (c *Config) GetHistoryWindow() int {
	if c.HistoryWindow < 1 {
		return 12
	}
	return c.HistoryWindow
}

// Load reads configuration from the environment, honoring an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		WorkerConcurrency:       mustInt(getEnv("WORKER_CONCURRENCY", "10")),
		IngestQueueWeight:       mustInt(getEnv("INGEST_QUEUE_WEIGHT", "3")),
		ConversationQueueWeight: mustInt(getEnv("CONVERSATION_QUEUE_WEIGHT", "7")),
		ScanInterval:            mustDuration(getEnv("SCAN_INTERVAL", "10m")),
		WhatsAppURL:             getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:             getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:        getEnv("WHATSAPP_DEVICE_ID", ""),
		WhatsAppSendRate:        mustFloat(getEnv("WHATSAPP_SEND_RATE", "1")),
		AIProvider:              getEnv("AI_PROVIDER", "gemini"),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModel:             getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ChatBaseURL:             getEnv("CHAT_BASE_URL", ""),
		ChatAPIKey:              getEnv("CHAT_API_KEY", ""),
		ChatModel:               getEnv("CHAT_MODEL", ""),
		AITimeout:               mustDuration(getEnv("AI_TIMEOUT", "30s")),
		MinIOEndpoint:           getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:             strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		UploadBucket:            getEnv("MINIO_BUCKET_SOURCE_UPLOADS", "source-uploads"),
		IngestChunkSize:         mustInt(getEnv("INGEST_CHUNK_SIZE", "250")),
		FetchTimeout:            mustDuration(getEnv("FETCH_TIMEOUT", "45s")),
		FollowupAge:             mustDuration(getEnv("FOLLOWUP_AGE", "24h")),
		HistoryWindow:           mustInt(getEnv("HISTORY_WINDOW", "12")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.ScanInterval < time.Minute {
		return nil, fmt.Errorf("SCAN_INTERVAL must be at least 1m")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}
