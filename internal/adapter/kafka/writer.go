package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/rain-forecast-service/internal/config"
	"github.com/couchcryptid/rain-forecast-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces prediction events to a Kafka topic.
// It implements forecast.Publisher.
type Writer struct {
	writer  *kafkago.Writer
	timeout time.Duration
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured prediction topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaPredictionTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Writer{writer: w, timeout: cfg.KafkaPublishTimeout, logger: logger}
}

// Publish serializes and writes one prediction event, giving up after the
// configured publish timeout so a slow broker cannot stall the request.
func (w *Writer) Publish(ctx context.Context, event domain.PredictionEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write prediction event: %w", err)
	}
	w.logger.Debug("prediction event published", "event_id", event.ID, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a PredictionEvent into a Kafka message.
func serializeToMessage(event domain.PredictionEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "model", Value: []byte(event.Model)},
			{Key: "predicted_at", Value: []byte(event.PredictedAt.Format(time.RFC3339))},
		},
	}, nil
}
