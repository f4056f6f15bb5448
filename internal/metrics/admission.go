// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for camfetch runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Labels stay low-cardinality: no camera names, file names or run IDs.

var (
	// AdmissionTotal counts admission decisions by result (admitted/rejected).
	AdmissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfetch_admission_total",
		Help: "Total number of camera admission decisions, by result.",
	}, []string{"result"})

	// AdmissionWaitTotal counts bounded waits on the admission soft gate.
	AdmissionWaitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camfetch_admission_wait_total",
		Help: "Total number of bounded waits for admission capacity.",
	})

	// ActiveCameras tracks currently admitted camera sessions.
	ActiveCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camfetch_active_cameras",
		Help: "Current number of admitted camera sessions.",
	})

	// ConnectAttemptsTotal counts device login attempts by result.
	ConnectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfetch_connect_attempts_total",
		Help: "Total number of device connect attempts, by result (success/login_failed/channels_failed).",
	}, []string{"result"})

	// ConnectOutcomeTotal counts final connect outcomes per camera.
	ConnectOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfetch_connect_outcome_total",
		Help: "Total number of camera connect outcomes, by result (connected/exhausted/timeout/cancelled).",
	}, []string{"result"})
)

// RecordAdmission increments the admission counter.
func RecordAdmission(result string) {
	AdmissionTotal.WithLabelValues(result).Inc()
}

// RecordAdmissionWait increments the soft-gate wait counter.
func RecordAdmissionWait() {
	AdmissionWaitTotal.Inc()
}

// SetActiveCameras sets the active camera gauge.
func SetActiveCameras(count float64) {
	ActiveCameras.Set(count)
}

// GetActiveCameras returns the current value of the gauge (for testing).
func GetActiveCameras() float64 {
	var m dto.Metric
	if err := ActiveCameras.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

// RecordConnectAttempt increments the connect attempt counter.
func RecordConnectAttempt(result string) {
	ConnectAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordConnectOutcome increments the connect outcome counter.
func RecordConnectOutcome(result string) {
	ConnectOutcomeTotal.WithLabelValues(result).Inc()
}

// counterValue reads a labelled counter (for testing).
func counterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GetAdmissionTotal returns the admission counter for result (for testing).
func GetAdmissionTotal(result string) float64 {
	return counterValue(AdmissionTotal, result)
}

// GetConnectAttempts returns the connect attempt counter for result (for testing).
func GetConnectAttempts(result string) float64 {
	return counterValue(ConnectAttemptsTotal, result)
}
