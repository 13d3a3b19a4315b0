package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	activationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "manyllmd",
			Subsystem: "manager",
			Name:      "activations_total",
			Help:      "Activation attempts by result",
		},
		[]string{"result"},
	)

	evictionsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "manyllmd",
			Subsystem: "manager",
			Name:      "evictions_total",
			Help:      "Activations released to make room for another artifact",
		},
	)

	verifyFailuresCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "manyllmd",
			Subsystem: "manager",
			Name:      "verify_failures_total",
			Help:      "Integrity verifications that rejected an artifact during activation",
		},
	)
)

func init() {
	prometheus.MustRegister(activationsCounter, evictionsCounter, verifyFailuresCounter)
}
