// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"
)

// Operation modes.
const (
	ModeDownload = "download"
	ModeReboot   = "reboot"
)

// Ledger backends.
const (
	LedgerBackendFile  = "file"
	LedgerBackendRedis = "redis"
)

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Mode       string `yaml:"mode"`
	OutputRoot string `yaml:"output_root"`

	Cloud   CloudConfig   `yaml:"cloud"`
	Connect ConnectConfig `yaml:"connect"`

	// MaxConcurrentCameras caps simultaneously admitted camera sessions.
	MaxConcurrentCameras int `yaml:"max_concurrent_cameras"`
	// AdmissionPollInterval bounds a single wait on the admission soft gate.
	AdmissionPollInterval time.Duration `yaml:"admission_poll_interval"`

	Transfer TransferConfig `yaml:"transfer"`

	// Deadline is an absolute cut-off for the whole run. Mutually exclusive
	// with MaxProcessTime.
	Deadline       time.Time     `yaml:"deadline"`
	MaxProcessTime time.Duration `yaml:"max_process_time"`

	Cameras []CameraConfig `yaml:"cameras"`

	Ledger    LedgerConfig    `yaml:"ledger"`
	Journal   JournalConfig   `yaml:"journal"`
	Status    StatusConfig    `yaml:"status"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// CloudConfig addresses the cloud broker fronting the device fleet.
type CloudConfig struct {
	URL            string        `yaml:"url"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second
	RateBurst      int           `yaml:"rate_burst"`
}

// ConnectConfig drives the per-camera login retry loop.
type ConnectConfig struct {
	Retries      int           `yaml:"retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxTime      time.Duration `yaml:"max_time"`
}

// TransferConfig drives the per-file polling loop.
type TransferConfig struct {
	FileTimeout       time.Duration `yaml:"file_timeout"`
	NoProgressTimeout time.Duration `yaml:"no_progress_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxPollErrors     int           `yaml:"max_poll_errors"`
}

// CameraConfig names a camera and the recording windows to fetch from it.
type CameraConfig struct {
	Name      string           `yaml:"name"`
	Intervals []IntervalConfig `yaml:"intervals"`
}

// IntervalConfig is a recording window. Start must precede End.
type IntervalConfig struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// LedgerConfig selects where in-flight camera names are recorded.
type LedgerConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the shared ledger backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// JournalConfig enables the SQLite run journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// StatusConfig enables the HTTP status endpoint when Listen is set.
type StatusConfig struct {
	Listen    string `yaml:"listen"`
	RateLimit int    `yaml:"rate_limit"` // requests per minute per client
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // "grpc" or "http"
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// ResolveDeadline returns the global deadline relative to the process start.
// A zero time means no deadline.
func (c AppConfig) ResolveDeadline(start time.Time) time.Time {
	if !c.Deadline.IsZero() {
		return c.Deadline
	}
	if c.MaxProcessTime > 0 {
		return start.Add(c.MaxProcessTime)
	}
	return time.Time{}
}
