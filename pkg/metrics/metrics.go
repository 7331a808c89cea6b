// Package metrics holds the Prometheus collectors shared by the scoring
// surfaces.
package metrics

import (
	"errors"
	"time"

	"github.com/mchmarny/wilson/pkg/score"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Surfaces label values.
const (
	SurfaceTransform = "transform"
	SurfaceFunction  = "udf"
	SurfaceHTTP      = "http"
)

var (
	scoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wilson_scores_total",
		Help: "Total scores computed by surface",
	}, []string{"surface"})

	scoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wilson_score_errors_total",
		Help: "Failed score evaluations by surface and error kind",
	}, []string{"surface", "kind"})

	transformDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wilson_transform_duration_seconds",
		Help:    "Table transform duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
	})
)

// ObserveScores records n computed scores, or one failure when err is set.
func ObserveScores(surface string, n int, err error) {
	if err != nil {
		scoreErrors.WithLabelValues(surface, Kind(err)).Inc()
		return
	}
	scoresTotal.WithLabelValues(surface).Add(float64(n))
}

// ObserveTransform records the duration of a table transform.
func ObserveTransform(start time.Time) {
	transformDuration.Observe(time.Since(start).Seconds())
}

// Kind maps an error to its taxonomy label.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, score.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, score.ErrConfigurationMissing):
		return "configuration_missing"
	default:
		return "internal"
	}
}
