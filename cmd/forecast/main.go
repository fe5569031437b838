package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/rain-forecast-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/rain-forecast-service/internal/adapter/kafka"
	"github.com/couchcryptid/rain-forecast-service/internal/config"
	"github.com/couchcryptid/rain-forecast-service/internal/forecast"
	"github.com/couchcryptid/rain-forecast-service/internal/model"
	"github.com/couchcryptid/rain-forecast-service/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// The model is loaded once; the service does not start without it.
	m, err := model.Load(cfg.ModelPath, cfg.ModelFormat)
	if err != nil {
		logger.Error("failed to load model", "error", err, "path", cfg.ModelPath)
		os.Exit(1)
	}
	metrics.ModelLoaded.Set(1)
	metrics.ModelTrees.Set(float64(m.NumTrees()))
	logger.Info("model loaded", "model", m.Name(), "format", m.Format(), "trees", m.NumTrees())

	var predictor model.Predictor = m
	if cfg.PredictionCacheSize > 0 {
		cached, err := model.NewCachedPredictor(m, cfg.PredictionCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create prediction cache", "error", err)
			os.Exit(1)
		}
		predictor = cached
		logger.Info("prediction cache enabled", "size", cfg.PredictionCacheSize)
	}

	// Prediction events are feature-flagged via KAFKA_BROKERS.
	var (
		publisher forecast.Publisher
		writer    *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("prediction events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaPredictionTopic)
	} else {
		logger.Info("prediction events disabled")
	}

	svc := forecast.NewService(predictor, m.Name(), publisher, clockwork.NewRealClock(), logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
