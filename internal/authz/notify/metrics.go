// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zac_notifications_total",
		Help: "Total number of notifications by result (delivered, failed, dropped)",
	}, []string{"result"})

	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zac_notification_delivery_duration_seconds",
		Help:    "Histogram of notification delivery latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zac_notification_queue_depth",
		Help: "Number of notifications waiting for delivery",
	})
)
