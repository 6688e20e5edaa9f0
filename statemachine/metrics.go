package statemachine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded on the triggers counter and on fire spans.
const (
	outcomeFired       = "fired"
	outcomeDeclined    = "declined"
	outcomeActionError = "action_error"
	outcomeWriteError  = "write_error"
)

// Metric definitions with appropriate labels.
var (
	// triggersTotal counts Fire calls by machine, trigger, and outcome.
	triggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_triggers_total",
		Help: "Total number of fire attempts by machine, trigger, and outcome (fired, declined, action_error, write_error)",
	}, []string{"machine", "trigger", "outcome"})

	// transitionsTotal counts committed state changes. Reentries are not counted.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_transitions_total",
		Help: "Total number of state transitions by machine, from_state, and to_state",
	}, []string{"machine", "from_state", "to_state"})

	// fireDuration tracks time spent in Fire, lock wait included.
	fireDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_fire_duration_seconds",
		Help:    "Duration of fire calls by machine and trigger, including time spent waiting for the lock",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"machine", "trigger"})
)

func sanitizeMachine(machine string) string {
	if machine == "" {
		return "unknown"
	}

	return machine
}
