// Package metrics holds the Prometheus instruments of the completion
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for a session.
type Metrics struct {
	// Completion write protocol
	WriteAttempts          *prometheus.CounterVec
	VerificationMismatches *prometheus.CounterVec
	Completions            *prometheus.CounterVec

	// Pending queue
	QueueEnqueued prometheus.Counter
	QueueDepth    prometheus.Gauge
	ReplayResults *prometheus.CounterVec

	// Free-tier policy
	GovernorDecisions *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec

	// Generation
	GenerationResults *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WriteAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "missionz_write_attempts_total",
			Help: "Completion write attempts by result",
		}, []string{"result"}), // ok, write_error, mismatch

		VerificationMismatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "missionz_verification_mismatches_total",
			Help: "Read-back verification mismatches by field",
		}, []string{"field"}),

		Completions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "missionz_completions_total",
			Help: "Completion operations by outcome",
		}, []string{"outcome"}), // completed, catchup, queued, rejected

		QueueEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "missionz_pending_enqueued_total",
			Help: "Results handed to the pending write queue",
		}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "missionz_pending_depth",
			Help: "Entries currently in the pending write queue",
		}),

		ReplayResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "missionz_replay_results_total",
			Help: "Pending queue replays by result",
		}, []string{"result"}), // replayed, kept, dropped

		GovernorDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "missionz_governor_decisions_total",
			Help: "Free-tier read budget decisions",
		}, []string{"decision"}), // allowed, warned, refused

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "missionz_cache_lookups_total",
			Help: "Result cache lookups by scope and result",
		}, []string{"scope", "result"}),

		GenerationResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "missionz_generation_results_total",
			Help: "Mission generation calls by result",
		}, []string{"result"}),
	}
}

// RecordWriteAttempt records one write-verify attempt.
func (m *Metrics) RecordWriteAttempt(result string) {
	if m == nil {
		return
	}
	m.WriteAttempts.WithLabelValues(result).Inc()
}

// RecordMismatch records a verification mismatch on field.
func (m *Metrics) RecordMismatch(field string) {
	if m == nil {
		return
	}
	m.VerificationMismatches.WithLabelValues(field).Inc()
}

// RecordCompletion records the outcome of a completion call.
func (m *Metrics) RecordCompletion(outcome string) {
	if m == nil {
		return
	}
	m.Completions.WithLabelValues(outcome).Inc()
}

// RecordEnqueue records a queued result and the new depth.
func (m *Metrics) RecordEnqueue(depth int) {
	if m == nil {
		return
	}
	m.QueueEnqueued.Inc()
	m.QueueDepth.Set(float64(depth))
}

// SetQueueDepth sets the pending queue depth.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordReplay records the result of replaying one queued entry.
func (m *Metrics) RecordReplay(result string) {
	if m == nil {
		return
	}
	m.ReplayResults.WithLabelValues(result).Inc()
}

// RecordGovernor records a governor decision.
func (m *Metrics) RecordGovernor(decision string) {
	if m == nil {
		return
	}
	m.GovernorDecisions.WithLabelValues(decision).Inc()
}

// RecordCacheLookup records a cache hit or miss for scope.
func (m *Metrics) RecordCacheLookup(scope string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(scope, result).Inc()
}

// RecordGeneration records a generation call result.
func (m *Metrics) RecordGeneration(result string) {
	if m == nil {
		return
	}
	m.GenerationResults.WithLabelValues(result).Inc()
}
