// Package config loads process configuration from the environment, the
// way the rest of this codebase's daemons do: typed accessors with
// defaults, and a single Validate pass before anything starts.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
)

// Config holds all process configuration.
type Config struct {
	Database DatabaseConfig
	Engine   EngineConfig
	Files    FileStoreConfig
	LLM      LLMConfig
	Watch    WatchConfig
}

// DatabaseConfig holds database connection settings for the Repository.
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// EngineConfig mirrors the PipelineEngine.Start config fields.
type EngineConfig struct {
	OCRWorkers            int
	LLMWorkers            int
	QueueSize             int
	EnablePageParallelOCR bool
	OCRPageWorkers        int
	LLMTimeout            time.Duration
	ExtractorMode         string // "embedded" | "ocr"
}

// FileStoreConfig holds the four directory roots FileStore owns.
type FileStoreConfig struct {
	InboxDir     string
	ProcessedDir string
	FailedDir    string
	RetryFeeDir  string
}

// LLMConfig holds the remote StructuredExtractor's connection settings.
type LLMConfig struct {
	Endpoint    string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// WatchConfig holds the optional inbox hot-folder watcher's settings.
type WatchConfig struct {
	Enabled  bool
	Debounce time.Duration
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Engine: EngineConfig{
			OCRWorkers:            getEnvAsInt("OCR_WORKERS", 2),
			LLMWorkers:            getEnvAsInt("LLM_WORKERS", 2),
			QueueSize:             getEnvAsInt("QUEUE_SIZE", 2),
			EnablePageParallelOCR: getEnvAsBool("ENABLE_PAGE_PARALLEL_OCR", false),
			OCRPageWorkers:        getEnvAsInt("OCR_PAGE_WORKERS", 2),
			LLMTimeout:            getEnvAsDuration("LLM_TIMEOUT", 300*time.Second),
			ExtractorMode:         getEnv("EXTRACTOR_MODE", "ocr"),
		},
		Files: FileStoreConfig{
			InboxDir:     getEnv("INBOX_DIR", "./data/inbox"),
			ProcessedDir: getEnv("PROCESSED_DIR", "./data/processed"),
			FailedDir:    getEnv("FAILED_DIR", "./data/failed"),
			RetryFeeDir:  getEnv("RETRY_FEE_DIR", "./data/retry_fee"),
		},
		LLM: LLMConfig{
			Endpoint:    getEnv("LLM_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("LLM_HTTP_TIMEOUT", 45*time.Second),
		},
		Watch: WatchConfig{
			Enabled:  getEnvAsBool("WATCH_INBOX", false),
			Debounce: getEnvAsDuration("WATCH_DEBOUNCE", 2*time.Second),
		},
	}
}

// Validate enforces the numeric ranges the pipeline's components require
// before the engine is ever started.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return apperr.New(apperr.InvalidInput, "DB_URL is required", nil)
	}
	if c.LLM.APIKey == "" {
		return apperr.New(apperr.InvalidInput, "LLM_API_KEY is required", nil)
	}
	return c.Engine.Validate()
}

// Validate enforces §4.D.1's ranges on the engine's Start configuration.
func (e EngineConfig) Validate() error {
	switch {
	case e.OCRWorkers < 1 || e.OCRWorkers > 20:
		return apperr.New(apperr.InvalidInput, "ocr_workers must be in 1..20", nil)
	case e.LLMWorkers < 1 || e.LLMWorkers > 20:
		return apperr.New(apperr.InvalidInput, "llm_workers must be in 1..20", nil)
	case e.QueueSize < 1 || e.QueueSize > 10:
		return apperr.New(apperr.InvalidInput, "queue_size must be in 1..10", nil)
	case e.EnablePageParallelOCR && (e.OCRPageWorkers < 1 || e.OCRPageWorkers > 8):
		return apperr.New(apperr.InvalidInput, "ocr_page_workers must be in 1..8", nil)
	case e.ExtractorMode != "embedded" && e.ExtractorMode != "ocr":
		return apperr.New(apperr.InvalidInput, "extractor_mode must be embedded or ocr", nil)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
