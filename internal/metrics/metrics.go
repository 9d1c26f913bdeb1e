// Package metrics exposes prometheus collectors for breed predictions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for PredictionsTotal.
const (
	OutcomeSuccess     = "success"
	OutcomeWrongFormat = "wrong_format"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Recorder counts predictions and times them.
type Recorder struct {
	predictions *prometheus.CounterVec
	duration    prometheus.Histogram
	breeds      *prometheus.CounterVec
}

// NewRecorder registers the collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dogbreed",
			Name:      "predictions_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dogbreed",
			Name:      "prediction_duration_seconds",
			Help:      "Time spent preprocessing and running the network.",
			Buckets:   prometheus.DefBuckets,
		}),
		breeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dogbreed",
			Name:      "predicted_breeds_total",
			Help:      "Successful predictions by breed.",
		}, []string{"breed"}),
	}
	reg.MustRegister(r.predictions, r.duration, r.breeds)
	return r
}

// Observe records one prediction. breed is ignored unless outcome is OutcomeSuccess.
func (r *Recorder) Observe(outcome, breed string, elapsed time.Duration) {
	r.predictions.WithLabelValues(outcome).Inc()
	r.duration.Observe(elapsed.Seconds())
	if outcome == OutcomeSuccess {
		r.breeds.WithLabelValues(breed).Inc()
	}
}
