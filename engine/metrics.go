package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	decisionAdmitted   = "admitted"
	decisionSuppressed = "suppressed"
	decisionRejected   = "rejected"
	decisionFault      = "fault"
)

var (
	decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripwire_events_total",
			Help: "Error events handled by decision.",
		},
		[]string{"decision"},
	)
	trackedErrors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripwire_tracked_errors",
			Help: "Error identities currently held in the throttle store.",
		},
	)
)
