// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// serverMetrics is registered on a per-server registry so several mock
// servers can coexist in one test binary.
type serverMetrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	sends      *prometheus.CounterVec
	deltas     prometheus.Counter
	coinsSpent prometheus.Counter
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_mock_requests_total",
			Help: "HTTP requests handled by the mock gateway.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatgate_mock_request_duration_seconds",
			Help:    "Mock gateway request latency, streams included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_mock_sends_total",
			Help: "Chat sends by outcome.",
		}, []string{"outcome"}),
		deltas: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatgate_mock_deltas_total",
			Help: "Delta events written.",
		}),
		coinsSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatgate_mock_coins_spent_total",
			Help: "Coins debited for completed replies.",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.latency, m.sends, m.deltas, m.coinsSpent,
		collectors.NewGoCollector(),
	)
	return m
}
