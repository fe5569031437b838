package model

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/rain-forecast-service/internal/domain"
	"github.com/dmitryikh/leaves"
	"github.com/dmitryikh/leaves/transformation"
)

// binaryBooster evaluates models saved with XGBoost's legacy binary
// serialization (Booster.save_model("model.bst")).
type binaryBooster struct {
	ensemble *leaves.Ensemble
}

func loadBinaryBooster(path string) (*binaryBooster, error) {
	head, err := readHead(path)
	if err != nil {
		return nil, err
	}
	if format := sniffFormat(head); format != "" {
		return nil, fmt.Errorf("file is an %s document, not a legacy binary model; set MODEL_FORMAT=%s or auto", format, format)
	}

	// Load the logistic transformation so predictions come out as probabilities.
	// leaves rejects every objective other than binary:logistic here.
	ensemble, err := leaves.XGEnsembleFromFile(path, true)
	if err != nil {
		return nil, err
	}
	return newBinaryBooster(ensemble)
}

func newBinaryBooster(ensemble *leaves.Ensemble) (*binaryBooster, error) {
	if ensemble.NOutputGroups() != 1 {
		return nil, fmt.Errorf("expected a single output group, got %d", ensemble.NOutputGroups())
	}
	if ensemble.Transformation().Type() != transformation.Logistic {
		return nil, errors.New("model does not output probabilities")
	}
	if n := ensemble.NFeatures(); n > len(domain.FeatureNames) {
		return nil, fmt.Errorf("model expects %d features, rows have %d", n, len(domain.FeatureNames))
	}
	return &binaryBooster{ensemble: ensemble}, nil
}

func (b *binaryBooster) predictRow(row []float64) (float64, error) {
	var out [1]float64
	if err := b.ensemble.Predict(row, 0, out[:]); err != nil {
		return 0, err
	}
	return out[0], nil
}

func (b *binaryBooster) numTrees() int {
	return b.ensemble.NEstimators()
}
