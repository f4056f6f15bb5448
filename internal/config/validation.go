// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/camfetch/internal/validate"
)

// maxPollErrorsLimit caps transfer.max_poll_errors.
const maxPollErrorsLimit = 100

// Validate checks cfg and reports every problem in a single validate.ValidationError.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("mode", cfg.Mode, []string{ModeDownload, ModeReboot})

	v.URL("cloud.url", cfg.Cloud.URL, []string{"http", "https"})
	v.NotEmpty("cloud.username", cfg.Cloud.Username)
	v.PositiveDuration("cloud.request_timeout", cfg.Cloud.RequestTimeout)
	if cfg.Cloud.RateLimit < 0 {
		v.AddError("cloud.rate_limit", "rate limit cannot be negative", cfg.Cloud.RateLimit)
	}

	v.Positive("connect.retries", cfg.Connect.Retries)
	v.PositiveDuration("connect.initial_delay", cfg.Connect.InitialDelay)
	v.PositiveDuration("connect.max_time", cfg.Connect.MaxTime)

	v.Positive("max_concurrent_cameras", cfg.MaxConcurrentCameras)
	v.PositiveDuration("admission_poll_interval", cfg.AdmissionPollInterval)

	v.PositiveDuration("transfer.file_timeout", cfg.Transfer.FileTimeout)
	v.PositiveDuration("transfer.no_progress_timeout", cfg.Transfer.NoProgressTimeout)
	v.PositiveDuration("transfer.poll_interval", cfg.Transfer.PollInterval)
	v.Range("transfer.max_poll_errors", cfg.Transfer.MaxPollErrors, 1, maxPollErrorsLimit)

	if !cfg.Deadline.IsZero() && cfg.MaxProcessTime > 0 {
		v.AddError("deadline", "deadline and max_process_time are mutually exclusive", cfg.Deadline)
	}
	if cfg.MaxProcessTime < 0 {
		v.AddError("max_process_time", "cannot be negative", cfg.MaxProcessTime)
	}

	if cfg.Mode == ModeDownload {
		v.Directory("output_root", cfg.OutputRoot, false)
	}

	seen := make(map[string]struct{}, len(cfg.Cameras))
	for i, cam := range cfg.Cameras {
		field := fmt.Sprintf("cameras[%d]", i)
		if strings.TrimSpace(cam.Name) == "" {
			v.AddError(field+".name", "camera name cannot be empty", cam.Name)
			continue
		}
		key := strings.ToUpper(cam.Name)
		if _, dup := seen[key]; dup {
			v.AddError(field+".name", "duplicate camera name", cam.Name)
		}
		seen[key] = struct{}{}
		// Inverted windows are skipped at transfer time; only missing bounds are rejected here.
		for j, iv := range cam.Intervals {
			if iv.Start.IsZero() || iv.End.IsZero() {
				v.AddError(fmt.Sprintf("%s.intervals[%d]", field, j), "start and end are required", iv)
			}
		}
	}

	v.OneOf("ledger.backend", cfg.Ledger.Backend, []string{LedgerBackendFile, LedgerBackendRedis})
	switch cfg.Ledger.Backend {
	case LedgerBackendFile:
		v.NotEmpty("ledger.path", cfg.Ledger.Path)
	case LedgerBackendRedis:
		v.NotEmpty("ledger.redis.addr", cfg.Ledger.Redis.Addr)
		v.NotEmpty("ledger.redis.key", cfg.Ledger.Redis.Key)
	}

	if cfg.Status.Listen != "" {
		v.Positive("status.rate_limit", cfg.Status.RateLimit)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("telemetry.sampling_rate", "must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}
