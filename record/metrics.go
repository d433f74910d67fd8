package record

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var judgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lumen_records_judged_total",
	Help: "Number of records reaching a terminal status",
}, []string{"status"})
