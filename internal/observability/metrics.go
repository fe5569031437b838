package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the forecast service.
type Metrics struct {
	Predictions          *prometheus.CounterVec // labels: outcome={success,invalid,error}
	InferenceDuration    prometheus.Histogram
	PredictedProbability prometheus.Histogram
	ModelLoaded          prometheus.Gauge
	ModelTrees           prometheus.Gauge

	// Prediction cache metrics.
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss}

	// Event sink metrics.
	EventsPublished prometheus.Counter
	PublishErrors   prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.Predictions,
		m.InferenceDuration,
		m.PredictedProbability,
		m.ModelLoaded,
		m.ModelTrees,
		m.CacheLookups,
		m.EventsPublished,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rain_forecast",
			Name:      "predictions_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"outcome"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rain_forecast",
			Name:      "inference_duration_seconds",
			Help:      "Time spent in model inference for a single row.",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		PredictedProbability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rain_forecast",
			Name:      "predicted_probability",
			Help:      "Distribution of predicted next-day rain probabilities.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		ModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rain_forecast",
			Name:      "model_loaded",
			Help:      "1 once the model artifact is loaded, 0 otherwise.",
		}),
		ModelTrees: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rain_forecast",
			Name:      "model_trees",
			Help:      "Number of trees in the loaded ensemble.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rain_forecast",
			Name:      "prediction_cache_total",
			Help:      "Prediction cache lookups by result.",
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rain_forecast",
			Name:      "events_published_total",
			Help:      "Prediction events written to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rain_forecast",
			Name:      "publish_errors_total",
			Help:      "Prediction events that could not be written to the sink topic.",
		}),
	}
}
