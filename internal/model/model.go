// Package model loads the rain classifier artifact and runs inference on a
// single feature row.
package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/rain-forecast-service/internal/config"
	"github.com/couchcryptid/rain-forecast-service/internal/domain"
)

var (
	// ErrModelLoad is returned when the artifact is missing, malformed, or
	// incompatible with the four-feature schema.
	ErrModelLoad = errors.New("load model")

	// ErrInference is returned when the model cannot produce a probability for a row.
	ErrInference = errors.New("inference failed")
)

// Predictor turns a feature row into a rain probability.
type Predictor interface {
	Predict(f domain.FeatureVector) (float64, error)
}

// evaluator is implemented by each artifact format. Rows arrive in
// domain.FeatureNames order.
type evaluator interface {
	predictRow(row []float64) (float64, error)
	numTrees() int
}

// Model is a loaded, read-only classifier. It is safe for concurrent use.
type Model struct {
	path   string
	format string
	eval   evaluator
}

// Load reads the artifact at path. format is one of the config.ModelFormat*
// values; config.ModelFormatAuto picks the decoder from the file contents,
// falling back to the file extension.
func Load(path, format string) (*Model, error) {
	if format == "" || format == config.ModelFormatAuto {
		detected, err := detectFormat(path)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrModelLoad, path, err)
		}
		format = detected
	}

	var (
		eval evaluator
		err  error
	)
	switch format {
	case config.ModelFormatJSON:
		eval, err = loadJSONBooster(path)
	case config.ModelFormatUBJSON:
		eval, err = loadUBJSONBooster(path)
	case config.ModelFormatBinary:
		eval, err = loadBinaryBooster(path)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrModelLoad, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrModelLoad, path, err)
	}

	return &Model{path: path, format: format, eval: eval}, nil
}

// detectFormat sniffs the first bytes of the artifact. XGBoost's document
// formats both open with '{', so model.bst written by a recent XGBoost is
// recognised as UBJSON whatever its name.
func detectFormat(path string) (string, error) {
	head, err := readHead(path)
	if err != nil {
		return "", err
	}
	if format := sniffFormat(head); format != "" {
		return format, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return config.ModelFormatJSON, nil
	case ".ubj":
		return config.ModelFormatUBJSON, nil
	default:
		// .bst, .bin, .model and anything else: XGBoost's legacy binary layout.
		return config.ModelFormatBinary, nil
	}
}

const headSize = 16

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, headSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return head[:n], nil
}

// sniffFormat returns the document format of head, or "" when head does not
// start an object. After '{' a JSON document continues with whitespace or a
// quote, a UBJSON one with a length marker or a container header.
func sniffFormat(head []byte) string {
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) < 2 || trimmed[0] != '{' {
		return ""
	}
	switch trimmed[1] {
	case 'i', 'U', 'I', 'l', 'L', '$', '#':
		return config.ModelFormatUBJSON
	default:
		return config.ModelFormatJSON
	}
}

// Predict returns the probability of rain for f.
func (m *Model) Predict(f domain.FeatureVector) (float64, error) {
	p, err := m.eval.predictRow(f.Row())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: probability %v outside [0,1]", ErrInference, p)
	}
	return p, nil
}

// Name identifies the model in logs and events, e.g. "xgboost-json:model.json".
func (m *Model) Name() string {
	return m.format + ":" + filepath.Base(m.path)
}

// Format returns the decoder used for the artifact.
func (m *Model) Format() string { return m.format }

// NumTrees returns the number of trees in the ensemble.
func (m *Model) NumTrees() int { return m.eval.numTrees() }

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
