// Package metrics defines Prometheus metrics for the valuation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "valuation"

// Evaluation metrics.
var (
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of single-record evaluations in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	EvaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evaluations_total",
		Help:      "Total number of record evaluations performed.",
	})

	RuleMatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rule_matches_total",
		Help:      "Total number of breakdown lines contributed by matched rules.",
	})

	ActionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "action_errors_total",
		Help:      "Total number of actions that produced a zero-delta error line.",
	})
)

// Revaluation batch metrics.
var (
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Duration of bulk revaluation runs in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	BatchRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_records_total",
		Help:      "Total number of records processed by bulk revaluation.",
	})

	BatchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_errors_total",
		Help:      "Total number of records that failed to persist during revaluation.",
	})
)

// Baseline lifecycle metrics.
var (
	BaselineAdoptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "baseline_adoptions_total",
		Help:      "Total number of baseline adoptions committed.",
	})

	ActiveRulesetVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_ruleset_version",
		Help:      "Version number of the currently active ruleset.",
	})
)
