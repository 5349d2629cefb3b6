// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// PROMETHEUS METRICS
// =============================================================================

var (
	// requestsTotal counts gateway requests by operation and outcome
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgate_gateway_requests_total",
		Help: "Gateway requests by operation and outcome",
	}, []string{"op", "outcome"})

	// requestDuration tracks time to response headers
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatgate_gateway_request_duration_seconds",
		Help:    "Time until gateway response headers arrive",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"op"})

	// streamEventsTotal counts framed SSE records by event name
	streamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgate_gateway_stream_events_total",
		Help: "SSE records received by event name",
	}, []string{"event"})

	// streamOutcomesTotal counts how streams ended
	streamOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatgate_gateway_stream_outcomes_total",
		Help: "Stream terminations by outcome",
	}, []string{"outcome"})
)

// knownEvent folds arbitrary event names into a bounded label set.
func knownEvent(name string) string {
	switch name {
	case EventNameStarted, EventNameDelta, EventNameCompleted:
		return name
	}
	return "other"
}
