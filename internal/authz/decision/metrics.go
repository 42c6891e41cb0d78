// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package decision

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zac_decision_evaluate_duration_seconds",
		Help:    "Histogram of permission evaluation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zac_decisions_total",
		Help: "Total number of permission evaluations by effect",
	}, []string{"effect"})

	collaboratorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zac_decision_collaborator_failures_total",
		Help: "Total number of evaluations denied because a collaborator failed",
	}, []string{"collaborator"})
)

// RecordEvaluationMetrics records one completed evaluation.
func RecordEvaluationMetrics(duration time.Duration, effect Effect) {
	evaluateDuration.Observe(duration.Seconds())
	decisionsTotal.WithLabelValues(effect.String()).Inc()
}
