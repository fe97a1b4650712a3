// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package diagnostics exposes the runtime counters/gauges SPEC_FULL.md §3
// names for the PubSub publish/receive pipelines, instrumented with
// prometheus/client_golang the way the teacher instruments its own
// long-running collectors, and served alongside the rest of
// internal/api's read-only operational surface.
package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every PubSub runtime metric under one prometheus
// registerer so tests can construct an isolated instance instead of
// colliding on the global default registry.
type Registry struct {
	MessagesPublished  *prometheus.CounterVec
	MessagesReceived   *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	SendErrors         *prometheus.CounterVec
	SequenceGaps       *prometheus.CounterVec
	ComponentsEnabled  prometheus.Gauge
	ComponentsTotal    prometheus.Gauge
}

// NewRegistry registers every metric on reg (pass
// prometheus.DefaultRegisterer in production, a fresh
// prometheus.NewRegistry() in tests).
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		MessagesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pubsub_messages_published_total",
			Help: "NetworkMessages sent, by writer group id.",
		}, []string{"writer_group"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pubsub_messages_received_total",
			Help: "DataSetMessages decoded and applied to a matching reader, by reader group.",
		}, []string{"reader_group"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pubsub_messages_dropped_total",
			Help: "Inbound messages dropped (no matching reader, decode failure, security failure), by reason.",
		}, []string{"reason"}),
		SendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pubsub_send_errors_total",
			Help: "Publish-side encode/send failures, by writer group id.",
		}, []string{"writer_group"}),
		SequenceGaps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pubsub_reader_sequence_gaps_total",
			Help: "Detected gaps in a DataSetReader's received DataSetMessageSequenceNumber.",
		}, []string{"reader"}),
		ComponentsEnabled: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pubsub_components_enabled",
			Help: "Components currently outside the Disabled state.",
		}),
		ComponentsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pubsub_components_total",
			Help: "Total components of any kind known to the manager.",
		}),
	}
}

// Default is the process-wide registry bound to the global prometheus
// registerer, used unless a caller builds its own for test isolation.
var Default = NewRegistry(prometheus.DefaultRegisterer)
