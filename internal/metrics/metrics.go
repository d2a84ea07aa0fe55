// Package metrics provides Prometheus metrics for the session service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionTransitions counts controller state transitions.
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sigea",
			Name:      "session_transitions_total",
			Help:      "Total number of session controller state transitions",
		},
		[]string{"from", "to"},
	)

	// LoginAttempts counts sign-in attempts by method and outcome.
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sigea",
			Name:      "login_attempts_total",
			Help:      "Total number of sign-in attempts",
		},
		[]string{"method", "outcome"},
	)

	// ProfileLookups counts profile resolutions by outcome (found, missing, error).
	ProfileLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sigea",
			Name:      "profile_lookups_total",
			Help:      "Total number of user profile lookups",
		},
		[]string{"outcome"},
	)

	// ActiveVisitors tracks the number of live session controllers.
	ActiveVisitors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sigea",
			Name:      "active_visitors",
			Help:      "Number of visitors with a live session controller",
		},
	)
)
