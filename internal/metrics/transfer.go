// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FileOutcomesTotal counts per-file transfer outcomes.
	FileOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfetch_file_outcomes_total",
		Help: "Total number of recording files processed, by outcome (completed/skipped/failed/timeout/stalled/deadline).",
	}, []string{"outcome"})

	// DownloadedMediaSeconds accumulates the media length of completed files.
	DownloadedMediaSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camfetch_downloaded_media_seconds_total",
		Help: "Total seconds of recorded media downloaded.",
	})

	// FileTransferDuration observes wall-clock time spent per transfer.
	FileTransferDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camfetch_file_transfer_duration_seconds",
		Help:    "Wall-clock duration of recording transfers, by outcome.",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	}, []string{"outcome"})

	// CameraOutcomesTotal counts per-camera run outcomes.
	CameraOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camfetch_camera_outcomes_total",
		Help: "Total number of camera tasks, by outcome.",
	}, []string{"mode", "outcome"})

	// RunDuration observes whole-run duration.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camfetch_run_duration_seconds",
		Help:    "Duration of camfetch runs, by mode.",
		Buckets: prometheus.ExponentialBuckets(10, 2, 12),
	}, []string{"mode"})

	// DeviceAPIRequestDuration observes cloud Device API request latency.
	DeviceAPIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camfetch_deviceapi_request_duration_seconds",
		Help:    "Cloud Device API request latency, by operation and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// RecordFileOutcome counts a file outcome and its transfer duration.
// Skipped files carry no duration.
func RecordFileOutcome(outcome string, d time.Duration) {
	FileOutcomesTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		FileTransferDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// AddDownloadedMedia adds the media length of a completed file.
func AddDownloadedMedia(seconds int64) {
	if seconds > 0 {
		DownloadedMediaSeconds.Add(float64(seconds))
	}
}

// RecordCameraOutcome counts a camera task outcome.
func RecordCameraOutcome(mode, outcome string) {
	CameraOutcomesTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveRun records the duration of a finished run.
func ObserveRun(mode string, d time.Duration) {
	RunDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveDeviceAPIRequest records one cloud request. status 0 means transport failure.
func ObserveDeviceAPIRequest(operation string, status int, d time.Duration) {
	DeviceAPIRequestDuration.WithLabelValues(operation, strconv.Itoa(status)).Observe(d.Seconds())
}

// GetFileOutcomes returns the file outcome counter (for testing).
func GetFileOutcomes(outcome string) float64 {
	return counterValue(FileOutcomesTotal, outcome)
}
