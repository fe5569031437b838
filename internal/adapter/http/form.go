package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/rain-forecast-service/internal/domain"
)

// formPage is the view model for templates/form.html.
type formPage struct {
	Fields []formField
	Result string
	Error  string
}

type formField struct {
	Name  string
	Label string
	Min   string
	Value string
	Error string
}

// fieldDef describes one numeric input, in model column order.
type fieldDef struct {
	name  string
	label string
	min   string
}

var formFields = []fieldDef{
	{name: domain.FeaturePrecipLag1, label: "Precipitation yesterday (mm)", min: "0"},
	{name: domain.FeaturePressLag1, label: "Mean pressure yesterday (hPa)"},
	{name: domain.FeaturePrecip3dSum, label: "Total precipitation, last 3 days (mm)"},
	{name: domain.FeatureTempLag1, label: "Mean temperature yesterday (°C)"},
}

var errNotNumeric = errors.New("must be a number")

// newFormPage renders the inputs with the values of f.
func newFormPage(f domain.FeatureVector) formPage {
	fields := make([]formField, len(formFields))
	for i, def := range formFields {
		v, _ := f.Value(def.name)
		fields[i] = formField{Name: def.name, Label: def.label, Min: def.min, Value: formatValue(v)}
	}
	return formPage{Fields: fields}
}

func (s *Server) handleForm(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, newFormPage(domain.DefaultFeatureVector()))
}

func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		page := newFormPage(domain.DefaultFeatureVector())
		page.Error = "Could not read the form submission."
		s.render(w, http.StatusBadRequest, page)
		return
	}

	f, page, ok := parseForm(r)
	if !ok {
		page.Error = "Please enter numeric values."
		s.render(w, http.StatusBadRequest, page)
		return
	}

	prediction, err := s.forecaster.Predict(r.Context(), f)
	switch {
	case errors.Is(err, domain.ErrInvalidFeatures):
		page.Error = err.Error()
		s.render(w, http.StatusBadRequest, page)
	case err != nil:
		page.Error = "Prediction failed: " + err.Error()
		s.render(w, http.StatusUnprocessableEntity, page)
	default:
		page.Result = prediction.Display()
		s.render(w, http.StatusOK, page)
	}
}

// parseForm reads the four inputs. Blank inputs take their default value; any
// other non-numeric entry marks the field and reports ok=false, in which case
// no FeatureVector is built. The page echoes what the user typed.
func parseForm(r *http.Request) (domain.FeatureVector, formPage, bool) {
	defaults := domain.DefaultFeatureVector()
	page := newFormPage(defaults)
	values := make(map[string]float64, len(formFields))
	ok := true

	for i, def := range formFields {
		raw := strings.TrimSpace(r.PostForm.Get(def.name))
		if raw == "" {
			values[def.name], _ = defaults.Value(def.name)
			continue
		}
		page.Fields[i].Value = raw
		v, err := parseNumber(raw)
		if err != nil {
			page.Fields[i].Error = err.Error()
			ok = false
			continue
		}
		values[def.name] = v
	}
	if !ok {
		return domain.FeatureVector{}, page, false
	}

	return domain.FeatureVector{
		PrecipLag1:  values[domain.FeaturePrecipLag1],
		PressLag1:   values[domain.FeaturePressLag1],
		Precip3dSum: values[domain.FeaturePrecip3dSum],
		TempLag1:    values[domain.FeatureTempLag1],
	}, page, true
}

// parseNumber accepts plain decimal numbers only; strconv's "NaN", "Inf" and
// hex forms are not something a number input can produce.
func parseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || strings.ContainsAny(raw, "xXpP_") {
		return 0, errNotNumeric
	}
	return v, nil
}

// formatValue renders a value the way a step=0.1 input shows it, e.g. "1013.0".
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
