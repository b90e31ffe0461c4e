// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for the multiplexer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Direction labels for forwarded messages.
const (
	DirectionRequest = "request"
	DirectionEvent   = "event"
)

// Metrics holds all Prometheus metrics for the multiplexer.
type Metrics struct {
	// Session metrics
	ActiveSessions prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec

	// Object metrics
	ActiveAdapters *prometheus.GaugeVec
	BindsTotal     *prometheus.CounterVec
	Globals        *prometheus.GaugeVec

	// Traffic metrics
	MessagesTotal  *prometheus.CounterVec
	DroppedEvents  *prometheus.CounterVec
	ProtocolErrors *prometheus.CounterVec

	// Topology metrics
	TopologyChanges *prometheus.CounterVec

	// Loop metrics
	DispatchDuration prometheus.Histogram
}

// New creates a new Metrics instance registered with reg. A nil reg uses
// the default Prometheus registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "wlmux"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of currently open client sessions",
			},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of session lifecycle transitions",
			},
			[]string{"status"},
		),
		ActiveAdapters: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_adapters",
				Help:      "Number of live adapters by interface",
			},
			[]string{"interface"},
		),
		BindsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "binds_total",
				Help:      "Total number of global binds",
			},
			[]string{"interface", "status"},
		),
		Globals: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "globals",
				Help:      "Number of advertised globals by interface",
			},
			[]string{"interface"},
		),
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total number of forwarded messages",
			},
			[]string{"interface", "direction"},
		),
		DroppedEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_events_total",
				Help:      "Total number of upstream events with no live recipient",
			},
			[]string{"interface"},
		),
		ProtocolErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "protocol_errors_total",
				Help:      "Total number of protocol errors posted to clients",
			},
			[]string{"kind"},
		),
		TopologyChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topology_changes_total",
				Help:      "Total number of upstream topology notifications",
			},
			[]string{"type"},
		),
		DispatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of one dispatch pass in seconds",
				Buckets:   []float64{.00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
		),
	}

	return m
}

// ObserveDispatch times one dispatch pass.
func (m *Metrics) ObserveDispatch(f func() error) error {
	start := time.Now()
	err := f()
	m.DispatchDuration.Observe(time.Since(start).Seconds())
	return err
}
