// Package forecast implements the single use case of the service: turn a
// user's four measurements into a next-day rain probability.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/rain-forecast-service/internal/domain"
	"github.com/couchcryptid/rain-forecast-service/internal/model"
	"github.com/couchcryptid/rain-forecast-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Publisher records successful predictions somewhere outside the process.
type Publisher interface {
	Publish(ctx context.Context, event domain.PredictionEvent) error
}

// Service validates input, runs inference, and reports the outcome.
type Service struct {
	predictor model.Predictor
	modelName string
	publisher Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewService creates a Service around an already loaded predictor. Pass a nil
// publisher to disable prediction events.
func NewService(predictor model.Predictor, modelName string, publisher Publisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		predictor: predictor,
		modelName: modelName,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Predict returns the rain probability for f. Validation failures wrap
// domain.ErrInvalidFeatures; inference failures wrap model.ErrInference.
func (s *Service) Predict(ctx context.Context, f domain.FeatureVector) (domain.Prediction, error) {
	if err := f.Validate(); err != nil {
		s.metrics.Predictions.WithLabelValues("invalid").Inc()
		s.logger.Debug("rejected features", "error", err)
		return domain.Prediction{}, err
	}

	start := time.Now()
	p, err := s.predictor.Predict(f)
	s.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Predictions.WithLabelValues("error").Inc()
		s.logger.Warn("inference failed", "error", err, "model", s.modelName)
		return domain.Prediction{}, fmt.Errorf("predict: %w", err)
	}

	s.metrics.Predictions.WithLabelValues("success").Inc()
	s.metrics.PredictedProbability.Observe(p)

	prediction := domain.Prediction{
		Features:    f,
		Probability: p,
		PredictedAt: s.clock.Now().UTC(),
	}
	s.logger.Debug("prediction",
		"precip_lag1", f.PrecipLag1,
		"press_lag1", f.PressLag1,
		"precip_3d_sum", f.Precip3dSum,
		"temp_lag1", f.TempLag1,
		"probability", p,
	)

	s.publish(ctx, prediction)
	return prediction, nil
}

// publish is best effort: a sink outage never hides a prediction from the user.
// The event outlives the request, so a client disconnect does not cancel it;
// the publisher's own timeout bounds the write.
func (s *Service) publish(ctx context.Context, p domain.Prediction) {
	if s.publisher == nil {
		return
	}
	event := domain.NewPredictionEvent(p, s.modelName)
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.metrics.PublishErrors.Inc()
		s.logger.Warn("publish prediction event failed", "error", err, "event_id", event.ID)
		return
	}
	s.metrics.EventsPublished.Inc()
}

// CheckReadiness returns nil once a model is available.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.predictor == nil {
		return errors.New("model not loaded")
	}
	return nil
}
