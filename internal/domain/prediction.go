package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Prediction is the outcome of one inference call.
type Prediction struct {
	Features    FeatureVector `json:"features"`
	Probability float64       `json:"probability"` // 0.0–1.0
	PredictedAt time.Time     `json:"predicted_at"`
}

// Percentage formats the probability as a percentage with two decimals, e.g. "28.91%".
func (p Prediction) Percentage() string {
	return FormatPercentage(p.Probability)
}

// Display returns the user-facing result line, e.g. "Probability: 28.91%".
func (p Prediction) Display() string {
	return "Probability: " + p.Percentage()
}

// FormatPercentage renders a probability in [0,1] as "NN.NN%".
func FormatPercentage(probability float64) string {
	return fmt.Sprintf("%.2f%%", probability*100)
}

// PredictionEvent is the record published to the prediction topic.
type PredictionEvent struct {
	ID          string        `json:"id"`
	Model       string        `json:"model"`
	Features    FeatureVector `json:"features"`
	Probability float64       `json:"probability"`
	PredictedAt time.Time     `json:"predicted_at"`
}

// NewPredictionEvent wraps a prediction with a fresh event ID.
func NewPredictionEvent(p Prediction, model string) PredictionEvent {
	return PredictionEvent{
		ID:          uuid.NewString(),
		Model:       model,
		Features:    p.Features,
		Probability: p.Probability,
		PredictedAt: p.PredictedAt,
	}
}
