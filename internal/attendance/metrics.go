package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clockIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "clock_ins_total",
		Help:      "Clock-in attempts by outcome.",
	}, []string{"outcome"})

	clockOuts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "clock_outs_total",
		Help:      "Clock-out attempts by outcome.",
	}, []string{"outcome"})

	reportSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "report_duration_seconds",
		Help:      "Latency of session listings with totals.",
		Buckets:   prometheus.DefBuckets,
	})
)
