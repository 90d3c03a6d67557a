// Package metrics holds the prometheus instruments shared across newsrank.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestCandidates counts candidate outcomes: processed, reused, failed.
	IngestCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsrank_ingest_candidates_total",
			Help: "Ingestion candidates by outcome",
		},
		[]string{"outcome"},
	)

	// IngestRuns counts ingestion runs: ok or aborted.
	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsrank_ingest_runs_total",
			Help: "Ingestion runs by result",
		},
		[]string{"result"},
	)

	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsrank_fetch_attempts_total",
			Help: "Page fetch attempts by result",
		},
		[]string{"result"},
	)

	Feedback = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsrank_feedback_total",
			Help: "Feedback events applied to the preference ledger",
		},
		[]string{"kind"},
	)

	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsrank_recommend_duration_seconds",
			Help:    "Time spent producing a ranking",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"ranker"},
	)
)
