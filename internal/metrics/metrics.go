// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for turn metrics
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabot_turns_total",
		Help: "Total number of chat turns by outcome and error kind",
	}, []string{"outcome", "kind"})

	RetrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cabot_retrieval_duration_seconds",
		Help:    "Duration of query embedding plus similarity search",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"success"})

	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cabot_generation_duration_seconds",
		Help:    "Duration of chat completion requests",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"success"})

	RetrievedChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cabot_retrieved_chunks",
		Help:    "Number of chunks returned per retrieval",
		Buckets: []float64{0, 1, 2, 5, 10},
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cabot_active_sessions",
		Help: "Number of live browser sessions",
	})

	ChunksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cabot_chunks_ingested_total",
		Help: "Total number of chunks embedded and upserted",
	})

	IngestionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabot_ingestion_runs_total",
		Help: "Total number of ingestion runs",
	}, []string{"success"})
)

// ObserveRetrieval records one retrieval call.
func ObserveRetrieval(d time.Duration, results int, err error) {
	RetrievalDuration.WithLabelValues(strconv.FormatBool(err == nil)).Observe(d.Seconds())
	if err == nil {
		RetrievedChunks.Observe(float64(results))
	}
}

// ObserveGeneration records one completion call.
func ObserveGeneration(d time.Duration, err error) {
	GenerationDuration.WithLabelValues(strconv.FormatBool(err == nil)).Observe(d.Seconds())
}

// ObserveTurn records a finished turn; kind is empty on success.
func ObserveTurn(kind string) {
	if kind == "" {
		TurnsTotal.WithLabelValues(OutcomeOK, "").Inc()
		return
	}
	TurnsTotal.WithLabelValues(OutcomeError, kind).Inc()
}
