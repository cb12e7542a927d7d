package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeproof_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
		},
		[]string{"route", "method", "status"},
	)
	ProofsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeproof_proofs_generated_total",
			Help: "Total number of generated commitments",
		},
	)
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeproof_submissions_total",
			Help: "Report submissions by result",
		},
		[]string{"result"},
	)
	ReplayRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeproof_replay_rejections_total",
			Help: "Submissions rejected because the commitment was already used",
		},
	)
	ChainCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeproof_chain_call_duration_seconds",
			Help:    "Starknet call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeproof_events_dropped_total",
			Help: "Events a sink failed to deliver",
		},
		[]string{"sink"},
	)
)
