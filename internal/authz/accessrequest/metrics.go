// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package accessrequest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zac_access_requests_total",
		Help: "Total number of access request transitions by event",
	}, []string{"event"})

	changesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zac_access_changes_total",
		Help: "Total number of direct access changes by handlers",
	}, []string{"outcome"})

	notifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zac_access_notification_failures_total",
		Help: "Total number of access notifications that could not be handed off",
	})

	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zac_access_requests_pending",
		Help: "Number of access requests awaiting a handler",
	})
)
