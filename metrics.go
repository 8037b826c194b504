package dualrun

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("dualrun")

var (
	modelLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dualrun_model_loads_total",
			Help: "Model loads per backend and result",
		},
		[]string{"backend", "result"},
	)
	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dualrun_run_duration_seconds",
			Help:    "Duration of a single model run per backend",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 16),
		},
		[]string{"backend"},
	)
	outputDivergences = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dualrun_output_divergences_total",
			Help: "Runs whose outputs differed between backends beyond tolerance",
		},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
