package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs by kind and outcome.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbot_jobs_total",
		Help: "Total number of generation jobs by kind and outcome",
	}, []string{"kind", "outcome"})

	// JobDuration observes the time from acceptance to the terminal outcome.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "genbot_job_duration_seconds",
		Help:    "Generation job duration in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"kind"})

	// JobsInFlight tracks jobs that have been accepted but not finished.
	JobsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "genbot_jobs_in_flight",
		Help: "Number of generation jobs currently in flight",
	}, []string{"kind"})

	// Polls counts provider status polls by result.
	Polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbot_polls_total",
		Help: "Total number of job status polls by kind and result",
	}, []string{"kind", "result"}) // result: pending, succeeded, failed, error

	// Enhancements counts prompt enhancement attempts.
	Enhancements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genbot_enhancements_total",
		Help: "Total number of prompt enhancement attempts by result",
	}, []string{"result"}) // result: ok, fallback
)
