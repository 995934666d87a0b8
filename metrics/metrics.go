// Package metrics holds the Prometheus collectors of the repository.
// Collectors register with the default registry on package load.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "artificer"

// Derivation outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimedOut  = "timed_out"
)

var (
	// derivations counts pipeline runs.
	// Labels: outcome (completed, failed)
	derivations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "derive",
		Name:      "runs_total",
		Help:      "Total derivation pipeline runs",
	}, []string{"outcome"})

	// derivedArtifacts counts artifacts persisted by derivation
	derivedArtifacts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "derive",
		Name:      "artifacts_total",
		Help:      "Total derived artifacts persisted",
	})

	// unresolvedReferences counts references left for relinking
	unresolvedReferences = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "derive",
		Name:      "unresolved_references_total",
		Help:      "Total references derivation could not resolve",
	})

	derivationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "derive",
		Name:      "duration_seconds",
		Help:      "Derivation pipeline run time in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	// queryLatency measures query evaluation.
	// Labels: status (ok, error)
	queryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "latency_seconds",
		Help:      "Query evaluation latency in seconds",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"status"})

	// constraintViolations counts blocked deletes and content replacements.
	// Labels: reason (relationship, custom_property, classifier)
	constraintViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "constraint_violations_total",
		Help:      "Total mutations blocked by graph constraints",
	}, []string{"reason"})

	// sequencingWaits counts derivation waits.
	// Labels: outcome (completed, failed, timed_out)
	sequencingWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sequencer",
		Name:      "waits_total",
		Help:      "Total waits for derivation to finish",
	}, []string{"outcome"})

	// queueDepth is the number of derivation jobs waiting for a worker
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "derive",
		Name:      "queue_depth",
		Help:      "Derivation jobs waiting for a worker",
	})
)

// RecordDerivation records one pipeline run
func RecordDerivation(outcome string, derived, unresolved int, took time.Duration) {
	derivations.WithLabelValues(outcome).Inc()
	derivationDuration.Observe(took.Seconds())
	if derived > 0 {
		derivedArtifacts.Add(float64(derived))
	}
	if unresolved > 0 {
		unresolvedReferences.Add(float64(unresolved))
	}
}

// RecordQuery records one query evaluation
func RecordQuery(err error, took time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	queryLatency.WithLabelValues(status).Observe(took.Seconds())
}

// RecordConstraintViolation records a mutation blocked for reason
func RecordConstraintViolation(reason string) {
	constraintViolations.WithLabelValues(reason).Inc()
}

// RecordSequencing records how a derivation wait ended
func RecordSequencing(outcome string) {
	sequencingWaits.WithLabelValues(outcome).Inc()
}

// SetQueueDepth reports the derivation backlog
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
