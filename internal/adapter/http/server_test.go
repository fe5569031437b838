package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/rain-forecast-service/internal/adapter/http"
	"github.com/couchcryptid/rain-forecast-service/internal/config"
	"github.com/couchcryptid/rain-forecast-service/internal/domain"
	"github.com/couchcryptid/rain-forecast-service/internal/forecast"
	"github.com/couchcryptid/rain-forecast-service/internal/model"
	"github.com/couchcryptid/rain-forecast-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockForecaster struct {
	probability float64
	err         error
	calls       []domain.FeatureVector
}

func (m *mockForecaster) Predict(_ context.Context, f domain.FeatureVector) (domain.Prediction, error) {
	m.calls = append(m.calls, f)
	if m.err != nil {
		return domain.Prediction{}, m.err
	}
	if err := f.Validate(); err != nil {
		return domain.Prediction{}, err
	}
	return domain.Prediction{Features: f, Probability: m.probability, PredictedAt: testTime}, nil
}

var testTime = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

var probabilityLine = regexp.MustCompile(`Probability: (\d{1,3}\.\d{2})%`)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockForecaster{probability: 0.5}, &mockReadiness{err: readyErr}, discardLogger())
}

func newForecastServer(f httpadapter.Forecaster) *httpadapter.Server {
	return httpadapter.NewServer(":0", f, &mockReadiness{}, discardLogger())
}

// newFixtureServer wires the real service around the test model.
func newFixtureServer(t *testing.T) *httpadapter.Server {
	t.Helper()
	m, err := model.Load("../../model/testdata/rain.json", config.ModelFormatAuto)
	require.NoError(t, err)
	svc := forecast.NewService(m, m.Name(), nil, clockwork.NewFakeClockAt(testTime), discardLogger(), observability.NewMetricsForTesting())
	return httpadapter.NewServer(":0", svc, svc, discardLogger())
}

func postForm(srv http.Handler, values url.Values) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.ServeHTTP(rec, req)
	return rec
}

func postJSON(srv http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("model not loaded"))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "model not loaded", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestFormShowsDefaults(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Rain forecast for tomorrow")
	assert.Contains(t, body, `name="press_lag1" step="0.1" value="1013.0"`)
	assert.Contains(t, body, `name="precip_lag1" step="0.1" min="0" value="0.0"`)
	assert.Contains(t, body, `name="precip_3d_sum" step="0.1" value="0.0"`)
	assert.Contains(t, body, `name="temp_lag1" step="0.1" value="0.0"`)
	assert.Contains(t, body, "Predict rain tomorrow")
	assert.NotContains(t, body, "Probability:", "no result before the first submission")
}

func TestFormSubmit_FixtureModel(t *testing.T) {
	srv := newFixtureServer(t)

	rec := postForm(srv, url.Values{
		"precip_lag1":   {"0"},
		"press_lag1":    {"1013.0"},
		"precip_3d_sum": {"0"},
		"temp_lag1":     {"20"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	match := probabilityLine.FindStringSubmatch(rec.Body.String())
	require.NotNil(t, match, "result line missing from page")
	pct, err := strconv.ParseFloat(match[1], 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pct, 0.0)
	assert.LessOrEqual(t, pct, 100.0)
	assert.Equal(t, "28.91", match[1])

	// Submitted values stay in the form.
	assert.Contains(t, rec.Body.String(), `name="temp_lag1" step="0.1" value="20"`)
}

func TestFormSubmit_SameInputSameOutput(t *testing.T) {
	srv := newFixtureServer(t)
	values := url.Values{"precip_lag1": {"2"}, "press_lag1": {"1000"}, "precip_3d_sum": {"10"}, "temp_lag1": {"10"}}

	first := probabilityLine.FindString(postForm(srv, values).Body.String())
	second := probabilityLine.FindString(postForm(srv, values).Body.String())

	assert.Equal(t, "Probability: 76.85%", first)
	assert.Equal(t, first, second)
}

func TestFormSubmit_BlankFieldsUseDefaults(t *testing.T) {
	fc := &mockForecaster{probability: 0.25}
	srv := newForecastServer(fc)

	rec := postForm(srv, url.Values{"temp_lag1": {" 12.5 "}})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fc.calls, 1)
	assert.Equal(t, domain.FeatureVector{PressLag1: domain.DefaultPressure, TempLag1: 12.5}, fc.calls[0])
	assert.Contains(t, rec.Body.String(), "Probability: 25.00%")
}

func TestFormSubmit_NonNumericInput(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{"letters", "press_lag1", "high"},
		{"nan", "temp_lag1", "NaN"},
		{"infinity", "precip_3d_sum", "Inf"},
		{"hex", "precip_lag1", "0x10"},
		{"comma decimal", "press_lag1", "1013,5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &mockForecaster{probability: 0.5}
			srv := newForecastServer(fc)

			rec := postForm(srv, url.Values{tt.field: {tt.value}})

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, fc.calls, "forecaster must not run on unparsable input")
			body := rec.Body.String()
			assert.Contains(t, body, "must be a number")
			assert.Contains(t, body, "Please enter numeric values.")
			assert.NotContains(t, body, "Probability:")
		})
	}
}

func TestFormSubmit_NegativePrecipitation(t *testing.T) {
	fc := &mockForecaster{probability: 0.5}
	srv := newForecastServer(fc)

	rec := postForm(srv, url.Values{"precip_lag1": {"-3"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "precip_lag1 must be at least 0")
	assert.NotContains(t, rec.Body.String(), "Probability:")
}

func TestFormSubmit_InferenceErrorShownInline(t *testing.T) {
	fc := &mockForecaster{err: fmt.Errorf("predict: %w", model.ErrInference)}
	srv := newForecastServer(fc)

	rec := postForm(srv, url.Values{"press_lag1": {"1013.0"}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `role="alert"`)
	assert.Contains(t, body, "Prediction failed: predict: inference failed")
	assert.NotContains(t, body, "Probability:")
	// The form stays usable after a failure.
	assert.Contains(t, body, "Predict rain tomorrow")
}

func TestPredictAPI_Success(t *testing.T) {
	srv := newFixtureServer(t)

	rec := postJSON(srv, `{"precip_lag1":0,"press_lag1":1013,"precip_3d_sum":0,"temp_lag1":20}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Probability float64              `json:"probability"`
		Percentage  string               `json:"percentage"`
		Display     string               `json:"display"`
		Features    domain.FeatureVector `json:"features"`
		PredictedAt time.Time            `json:"predicted_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 0.289050497, body.Probability, 1e-6)
	assert.Equal(t, "28.91%", body.Percentage)
	assert.Equal(t, "Probability: 28.91%", body.Display)
	assert.Equal(t, domain.FeatureVector{PressLag1: 1013, TempLag1: 20}, body.Features)
	assert.True(t, testTime.Equal(body.PredictedAt))
}

func TestPredictAPI_MissingFieldsUseDefaults(t *testing.T) {
	fc := &mockForecaster{probability: 0.1}
	srv := newForecastServer(fc)

	rec := postJSON(srv, "{\"temp_lag1\":4}\n")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fc.calls, 1)
	assert.Equal(t, domain.FeatureVector{PressLag1: domain.DefaultPressure, TempLag1: 4}, fc.calls[0])
}

func TestPredictAPI_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"malformed json", `{"precip_lag1":`, nil, http.StatusBadRequest, "malformed request body"},
		{"string value", `{"press_lag1":"high"}`, nil, http.StatusBadRequest, "malformed request body"},
		{"unknown field", `{"humidity":80}`, nil, http.StatusBadRequest, "malformed request body"},
		{"trailing garbage", `{"temp_lag1":4} garbage`, nil, http.StatusBadRequest, "unexpected data after JSON object"},
		{"second object", `{"temp_lag1":4}{"temp_lag1":5}`, nil, http.StatusBadRequest, "unexpected data after JSON object"},
		{"empty body", ``, nil, http.StatusBadRequest, "malformed request body"},
		{"negative precipitation", `{"precip_lag1":-1}`, nil, http.StatusBadRequest, "precip_lag1 must be at least 0"},
		{"inference failure", `{}`, fmt.Errorf("predict: %w", model.ErrInference), http.StatusUnprocessableEntity, "inference failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newForecastServer(&mockForecaster{probability: 0.5, err: tt.err})

			rec := postJSON(srv, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.wantError)
		})
	}
}

func TestPredictAPI_WrongMethod(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/predictions", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUnknownPathReturns404(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
