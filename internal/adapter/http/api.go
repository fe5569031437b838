package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/rain-forecast-service/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// predictionRequest mirrors domain.FeatureVector with optional fields; absent
// fields take the same defaults as the form.
type predictionRequest struct {
	PrecipLag1  *float64 `json:"precip_lag1"`
	PressLag1   *float64 `json:"press_lag1"`
	Precip3dSum *float64 `json:"precip_3d_sum"`
	TempLag1    *float64 `json:"temp_lag1"`
}

func (r predictionRequest) features() domain.FeatureVector {
	f := domain.DefaultFeatureVector()
	if r.PrecipLag1 != nil {
		f.PrecipLag1 = *r.PrecipLag1
	}
	if r.PressLag1 != nil {
		f.PressLag1 = *r.PressLag1
	}
	if r.Precip3dSum != nil {
		f.Precip3dSum = *r.Precip3dSum
	}
	if r.TempLag1 != nil {
		f.TempLag1 = *r.TempLag1
	}
	return f
}

type predictionResponse struct {
	Probability float64              `json:"probability"`
	Percentage  string               `json:"percentage"`
	Display     string               `json:"display"`
	Features    domain.FeatureVector `json:"features"`
	PredictedAt time.Time            `json:"predicted_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handlePredictAPI(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req predictionRequest
	if err := dec.Decode(&req); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body: " + err.Error()})
		return
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body: unexpected data after JSON object"})
		return
	}

	prediction, err := s.forecaster.Predict(r.Context(), req.features())
	switch {
	case errors.Is(err, domain.ErrInvalidFeatures):
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case err != nil:
		sharedobs.WriteJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		sharedobs.WriteJSON(w, http.StatusOK, predictionResponse{
			Probability: prediction.Probability,
			Percentage:  prediction.Percentage(),
			Display:     prediction.Display(),
			Features:    prediction.Features,
			PredictedAt: prediction.PredictedAt,
		})
	}
}
