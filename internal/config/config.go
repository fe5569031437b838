package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Supported values for MODEL_FORMAT.
const (
	ModelFormatAuto   = "auto"
	ModelFormatBinary = "xgboost-binary"
	ModelFormatJSON   = "xgboost-json"
	ModelFormatUBJSON = "xgboost-ubjson"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	ModelPath       string
	ModelFormat     string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// PredictionCacheSize is the number of memoized predictions; 0 disables the cache.
	PredictionCacheSize int

	// Prediction event sink. Disabled when KafkaBrokers is empty.
	KafkaBrokers         []string
	KafkaPredictionTopic string
	KafkaPublishTimeout  time.Duration
}

// KafkaEnabled reports whether prediction events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	publishTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("KAFKA_PUBLISH_TIMEOUT", "2s"))
	if err != nil || publishTimeout <= 0 {
		return nil, errors.New("invalid KAFKA_PUBLISH_TIMEOUT")
	}

	cacheSize, err := parseCacheSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ModelPath:            sharedcfg.EnvOrDefault("MODEL_PATH", "model.bst"),
		ModelFormat:          sharedcfg.EnvOrDefault("MODEL_FORMAT", ModelFormatAuto),
		HTTPAddr:             sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,
		PredictionCacheSize:  cacheSize,
		KafkaBrokers:         sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaPredictionTopic: sharedcfg.EnvOrDefault("KAFKA_PREDICTION_TOPIC", "rain-predictions"),
		KafkaPublishTimeout:  publishTimeout,
	}

	switch cfg.ModelFormat {
	case ModelFormatAuto, ModelFormatBinary, ModelFormatJSON, ModelFormatUBJSON:
	default:
		return nil, errors.New("invalid MODEL_FORMAT: must be auto, xgboost-binary, xgboost-json or xgboost-ubjson")
	}
	if cfg.KafkaEnabled() && cfg.KafkaPredictionTopic == "" {
		return nil, errors.New("KAFKA_PREDICTION_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parseCacheSize() (int, error) {
	s := os.Getenv("PREDICTION_CACHE_SIZE")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid PREDICTION_CACHE_SIZE: must be a non-negative integer")
	}
	return n, nil
}
