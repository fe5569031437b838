package model

import (
	"fmt"

	"github.com/couchcryptid/rain-forecast-service/internal/domain"
	"github.com/couchcryptid/rain-forecast-service/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedPredictor wraps a Predictor with an in-memory LRU cache keyed by the
// feature row. Inference is deterministic, so a hit returns exactly what the
// wrapped predictor would.
type CachedPredictor struct {
	inner   Predictor
	cache   *lru.Cache[domain.FeatureVector, float64]
	metrics *observability.Metrics
}

// NewCachedPredictor creates a cache decorator holding up to maxEntries rows.
func NewCachedPredictor(inner Predictor, maxEntries int, metrics *observability.Metrics) (*CachedPredictor, error) {
	cache, err := lru.New[domain.FeatureVector, float64](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create prediction cache: %w", err)
	}
	return &CachedPredictor{inner: inner, cache: cache, metrics: metrics}, nil
}

func (c *CachedPredictor) Predict(f domain.FeatureVector) (float64, error) {
	if p, ok := c.cache.Get(f); ok {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return p, nil
	}
	c.metrics.CacheLookups.WithLabelValues("miss").Inc()

	p, err := c.inner.Predict(f)
	if err != nil {
		return 0, err
	}
	// Only valid rows are cached: a NaN field never matches itself as a key.
	if f.Validate() == nil {
		c.cache.Add(f, p)
	}
	return p, nil
}

// Len returns the number of cached rows.
func (c *CachedPredictor) Len() int {
	return c.cache.Len()
}
