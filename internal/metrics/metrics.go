// Package metrics exposes Prometheus instrumentation for the simulation engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for scoring and narrative responses.
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeFailed  = "failed"
)

var (
	// DebounceArmed counts delta edits that (re)armed the debounce timer.
	DebounceArmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "twinsim_debounce_armed_total",
		Help: "Number of edits that armed or re-armed the debounce timer",
	})

	// RequestsIssued counts scoring requests sent after a quiet period.
	RequestsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "twinsim_simulation_requests_total",
		Help: "Number of simulation requests issued to the scoring service",
	})

	// ResultsCleared counts quiet periods that ended on an all-zero delta set.
	ResultsCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "twinsim_simulation_cleared_total",
		Help: "Number of times the displayed result was cleared because all deltas were zero",
	})

	// Responses counts scoring responses by outcome.
	Responses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twinsim_simulation_responses_total",
		Help: "Scoring responses by outcome (applied, stale, failed)",
	}, []string{"outcome"})

	// ScoringDuration observes scoring call latency.
	ScoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "twinsim_scoring_duration_seconds",
		Help:    "Duration of scoring service calls",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	// Narratives counts narrative responses by outcome.
	Narratives = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twinsim_narrative_responses_total",
		Help: "Narrative responses by outcome (applied, stale, failed)",
	}, []string{"outcome"})

	// NarrativesInvalidated counts narratives discarded by a later delta edit.
	NarrativesInvalidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "twinsim_narrative_invalidated_total",
		Help: "Number of narrative reports or in-flight narrative calls invalidated by a delta edit",
	})

	// ActiveSessions tracks open simulation sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "twinsim_sessions_active",
		Help: "Current number of open simulation sessions",
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a /metrics endpoint on addr. The returned server is owned by
// the caller, who must Shutdown it.
func Serve(addr string, onError func(error)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && onError != nil {
			onError(err)
		}
	}()
	return srv
}
