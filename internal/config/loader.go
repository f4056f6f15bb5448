// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads and validates camfetch runtime configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envTime(key string, defaultVal time.Time) time.Time {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseTime(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> file (strict) -> env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if cfg.OutputRoot != "" {
		if abs, err := filepath.Abs(cfg.OutputRoot); err == nil {
			cfg.OutputRoot = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the baseline configuration before file and env overrides.
func Defaults() AppConfig {
	return AppConfig{
		Mode:       ModeDownload,
		OutputRoot: "recordings",
		Cloud: CloudConfig{
			RequestTimeout: 30 * time.Second,
			RateLimit:      10,
			RateBurst:      20,
		},
		Connect: ConnectConfig{
			Retries:      10,
			InitialDelay: 10 * time.Second,
			MaxTime:      30 * time.Minute,
		},
		MaxConcurrentCameras:  10,
		AdmissionPollInterval: 10 * time.Second,
		Transfer: TransferConfig{
			FileTimeout:       30 * time.Minute,
			NoProgressTimeout: 5 * time.Minute,
			PollInterval:      time.Second,
			MaxPollErrors:     5,
		},
		Ledger: LedgerConfig{
			Backend: LedgerBackendFile,
			Path:    "FailedCameras.txt",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  "camfetch:inflight",
			},
		},
		Status: StatusConfig{
			RateLimit: 60,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		Log: LogConfig{
			Level:   "info",
			Service: "camfetch",
		},
	}
}

// loadFile decodes a YAML file over cfg. Keys absent from the file keep
// their current values.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnvConfig applies CAMFETCH_* overrides on top of cfg.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.Mode = l.envString(EnvPrefix+"MODE", cfg.Mode)
	cfg.OutputRoot = l.envString(EnvPrefix+"OUTPUT_ROOT", cfg.OutputRoot)

	cfg.Cloud.URL = l.envString(EnvPrefix+"CLOUD_URL", cfg.Cloud.URL)
	cfg.Cloud.Username = l.envString(EnvPrefix+"CLOUD_USERNAME", cfg.Cloud.Username)
	cfg.Cloud.Password = l.envString(EnvPrefix+"CLOUD_PASSWORD", cfg.Cloud.Password)
	cfg.Cloud.RequestTimeout = l.envDuration(EnvPrefix+"CLOUD_REQUEST_TIMEOUT", cfg.Cloud.RequestTimeout)
	cfg.Cloud.RateLimit = l.envFloat(EnvPrefix+"CLOUD_RATE_LIMIT", cfg.Cloud.RateLimit)
	cfg.Cloud.RateBurst = l.envInt(EnvPrefix+"CLOUD_RATE_BURST", cfg.Cloud.RateBurst)

	cfg.Connect.Retries = l.envInt(EnvPrefix+"CONNECT_RETRIES", cfg.Connect.Retries)
	cfg.Connect.InitialDelay = l.envDuration(EnvPrefix+"CONNECT_INITIAL_DELAY", cfg.Connect.InitialDelay)
	cfg.Connect.MaxTime = l.envDuration(EnvPrefix+"CONNECT_MAX_TIME", cfg.Connect.MaxTime)

	cfg.MaxConcurrentCameras = l.envInt(EnvPrefix+"MAX_CONCURRENT_CAMERAS", cfg.MaxConcurrentCameras)
	cfg.AdmissionPollInterval = l.envDuration(EnvPrefix+"ADMISSION_POLL_INTERVAL", cfg.AdmissionPollInterval)

	cfg.Transfer.FileTimeout = l.envDuration(EnvPrefix+"FILE_TIMEOUT", cfg.Transfer.FileTimeout)
	cfg.Transfer.NoProgressTimeout = l.envDuration(EnvPrefix+"NO_PROGRESS_TIMEOUT", cfg.Transfer.NoProgressTimeout)
	cfg.Transfer.PollInterval = l.envDuration(EnvPrefix+"POLL_INTERVAL", cfg.Transfer.PollInterval)
	cfg.Transfer.MaxPollErrors = l.envInt(EnvPrefix+"MAX_POLL_ERRORS", cfg.Transfer.MaxPollErrors)

	cfg.Deadline = l.envTime(EnvPrefix+"DEADLINE", cfg.Deadline)
	cfg.MaxProcessTime = l.envDuration(EnvPrefix+"MAX_PROCESS_TIME", cfg.MaxProcessTime)

	cfg.Ledger.Backend = l.envString(EnvPrefix+"LEDGER_BACKEND", cfg.Ledger.Backend)
	cfg.Ledger.Path = l.envString(EnvPrefix+"LEDGER_PATH", cfg.Ledger.Path)
	cfg.Ledger.Redis.Addr = l.envString(EnvPrefix+"REDIS_ADDR", cfg.Ledger.Redis.Addr)
	cfg.Ledger.Redis.Password = l.envString(EnvPrefix+"REDIS_PASSWORD", cfg.Ledger.Redis.Password)
	cfg.Ledger.Redis.DB = l.envInt(EnvPrefix+"REDIS_DB", cfg.Ledger.Redis.DB)
	cfg.Ledger.Redis.Key = l.envString(EnvPrefix+"REDIS_KEY", cfg.Ledger.Redis.Key)

	cfg.Journal.Path = l.envString(EnvPrefix+"JOURNAL_PATH", cfg.Journal.Path)
	cfg.Status.Listen = l.envString(EnvPrefix+"STATUS_LISTEN", cfg.Status.Listen)
	cfg.Status.RateLimit = l.envInt(EnvPrefix+"STATUS_RATE_LIMIT", cfg.Status.RateLimit)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	cfg.Log.Level = l.envString(EnvPrefix+"LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString(EnvPrefix+"LOG_SERVICE", cfg.Log.Service)
}

// SelectCameras restricts cfg.Cameras to names (case-insensitive). Every
// requested name must be configured. An empty selection keeps all cameras.
func (c *AppConfig) SelectCameras(names []string) error {
	if len(names) == 0 {
		return nil
	}
	byName := make(map[string]CameraConfig, len(c.Cameras))
	for _, cam := range c.Cameras {
		byName[strings.ToUpper(cam.Name)] = cam
	}
	selected := make([]CameraConfig, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		key := strings.ToUpper(strings.TrimSpace(n))
		if key == "" {
			continue
		}
		cam, ok := byName[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCamera, n)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		selected = append(selected, cam)
	}
	c.Cameras = selected
	return nil
}
