// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Status label values for operation metrics.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the counters recorded by Service.
type Metrics struct {
	// Operations counts completed operations by name and result kind.
	Operations *prometheus.CounterVec

	// DeliveryFailures counts best-effort notifications that failed.
	DeliveryFailures *prometheus.CounterVec

	// Rehashes counts credentials transparently upgraded at login.
	Rehashes prometheus.Counter
}

// NewMetrics creates unregistered metrics. Use Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_operations_total",
				Help: "Total number of account operations by result",
			},
			[]string{"operation", "status", "kind"},
		),
		DeliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_notification_failures_total",
				Help: "Total number of failed code deliveries",
			},
			[]string{"channel"},
		),
		Rehashes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "identity_credential_rehashes_total",
				Help: "Total number of credentials rehashed at login",
			},
		),
	}
}

// Register registers the metrics with reg.
// Panics if registration fails (following prometheus convention).
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.Operations, m.DeliveryFailures, m.Rehashes)
}

func (m *Metrics) recordOperation(operation string, err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.Operations.WithLabelValues(operation, StatusSuccess, "").Inc()
		return
	}
	m.Operations.WithLabelValues(operation, StatusFailure, string(KindOf(err))).Inc()
}

func (m *Metrics) recordDeliveryFailure(channel string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) recordRehash() {
	if m == nil {
		return
	}
	m.Rehashes.Inc()
}
