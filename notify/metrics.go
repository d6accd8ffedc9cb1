package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusOK      = "ok"
	statusError   = "error"
	statusUnknown = "unknown"
)

var (
	sinkResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_sink_results_total",
			Help: "Notification sink calls by notification type and status.",
		},
		[]string{"type", "status"},
	)
	sinkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripwire_sink_duration_seconds",
			Help:    "Duration of notification sink calls.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"type"},
	)
)

func observe(typ string, err error, took time.Duration) {
	status := statusOK
	if err != nil {
		status = statusError
	}

	sinkResults.WithLabelValues(typ, status).Inc()
	sinkDuration.WithLabelValues(typ).Observe(took.Seconds())
}
