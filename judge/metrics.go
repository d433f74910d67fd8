package judge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	claimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumen_judge_claimed_total",
		Help: "Number of judge tasks handed out to judgers",
	})

	nextTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumen_judge_next_total",
		Help: "Number of applied partial progress reports",
	})

	endTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumen_judge_end_total",
		Help: "Number of applied terminal reports",
	})

	requeueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lumen_judge_requeue_total",
		Help: "Number of in-flight tasks requeued after a judger disconnect",
	})

	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lumen_judge_connections",
		Help: "Number of judgers holding a push connection",
	})
)
