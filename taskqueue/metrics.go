package taskqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "lumen"

var (
	taskAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "taskqueue",
		Name:      "added_total",
		Help:      "Total number of tasks added to the queue",
	}, []string{"type"})

	taskClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "taskqueue",
		Name:      "claimed_total",
		Help:      "Total number of tasks atomically claimed from the queue",
	}, []string{"type"})
)
