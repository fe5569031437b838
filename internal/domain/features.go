package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Feature column names, in the order the model expects them.
const (
	FeaturePrecipLag1  = "precip_lag1"
	FeaturePressLag1   = "press_lag1"
	FeaturePrecip3dSum = "precip_3d_sum"
	FeatureTempLag1    = "temp_lag1"
)

// DefaultPressure is the press_lag1 value used when the user leaves it blank.
const DefaultPressure = 1013.0

// FeatureNames lists the model columns in row order.
var FeatureNames = []string{FeaturePrecipLag1, FeaturePressLag1, FeaturePrecip3dSum, FeatureTempLag1}

// ErrInvalidFeatures is returned when a FeatureVector fails validation.
var ErrInvalidFeatures = errors.New("invalid features")

// FeatureVector is the single row fed to the classifier.
type FeatureVector struct {
	PrecipLag1  float64 `json:"precip_lag1" validate:"finite,gte=0"`
	PressLag1   float64 `json:"press_lag1" validate:"finite"`
	Precip3dSum float64 `json:"precip_3d_sum" validate:"finite"`
	TempLag1    float64 `json:"temp_lag1" validate:"finite"`
}

// DefaultFeatureVector returns the values the form shows before any user input.
func DefaultFeatureVector() FeatureVector {
	return FeatureVector{PressLag1: DefaultPressure}
}

// Row returns the features in model column order.
func (f FeatureVector) Row() []float64 {
	return []float64{f.PrecipLag1, f.PressLag1, f.Precip3dSum, f.TempLag1}
}

// Value returns the feature with the given column name.
func (f FeatureVector) Value(name string) (float64, bool) {
	switch name {
	case FeaturePrecipLag1:
		return f.PrecipLag1, true
	case FeaturePressLag1:
		return f.PressLag1, true
	case FeaturePrecip3dSum:
		return f.Precip3dSum, true
	case FeatureTempLag1:
		return f.TempLag1, true
	default:
		return 0, false
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or a nil func.
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		x := fl.Field().Float()
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	})
	return v
}

// Validate checks the vector against the input rules. The returned error wraps
// ErrInvalidFeatures and names every offending field.
func (f FeatureVector) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidFeatures, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidFeatures, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "finite":
		return fmt.Sprintf("%s must be a finite number", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
