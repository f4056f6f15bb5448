// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/camfetch/internal/validate"
)

// TestLoad_ValidMinimal tests loading a valid minimal configuration.
func TestLoad_ValidMinimal(t *testing.T) {
	loader := NewLoader(filepath.Join("testdata", "valid-minimal.yaml"), "test")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}

	if cfg.Cloud.URL != "https://cloud.example.com" {
		t.Errorf("expected Cloud.URL=https://cloud.example.com, got %s", cfg.Cloud.URL)
	}
	if cfg.Version != "test" {
		t.Errorf("expected Version=test, got %s", cfg.Version)
	}
	// Defaults survive for keys absent from the file.
	if cfg.Connect.Retries != 10 || cfg.Connect.InitialDelay != 10*time.Second {
		t.Errorf("unexpected connect defaults: %+v", cfg.Connect)
	}
	if cfg.Transfer.MaxPollErrors != 5 {
		t.Errorf("expected MaxPollErrors=5, got %d", cfg.Transfer.MaxPollErrors)
	}
	if len(cfg.Cameras) != 1 || len(cfg.Cameras[0].Intervals) != 1 {
		t.Fatalf("unexpected cameras: %+v", cfg.Cameras)
	}
	want := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	if !cfg.Cameras[0].Intervals[0].End.Equal(want) {
		t.Errorf("expected interval end %s, got %s", want, cfg.Cameras[0].Intervals[0].End)
	}
}

func TestLoad_Full(t *testing.T) {
	loader := NewLoader(filepath.Join("testdata", "full.yaml"), "test")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}

	if cfg.Connect.Retries != 4 || cfg.Connect.MaxTime != 10*time.Minute {
		t.Errorf("unexpected connect: %+v", cfg.Connect)
	}
	if cfg.MaxConcurrentCameras != 3 || cfg.AdmissionPollInterval != 2*time.Second {
		t.Errorf("unexpected admission settings: %d %s", cfg.MaxConcurrentCameras, cfg.AdmissionPollInterval)
	}
	if cfg.Ledger.Backend != LedgerBackendRedis || cfg.Ledger.Redis.Addr != "redis:6379" {
		t.Errorf("unexpected ledger: %+v", cfg.Ledger)
	}
	if cfg.Status.Listen != ":9090" || cfg.Journal.Path != "/data/camfetch.db" {
		t.Errorf("unexpected status/journal: %+v %+v", cfg.Status, cfg.Journal)
	}
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if got := cfg.ResolveDeadline(start); !got.Equal(start.Add(6 * time.Hour)) {
		t.Errorf("unexpected deadline %s", got)
	}
}

// TestLoad_UnknownKeyFails tests that strict parsing rejects unknown fields.
func TestLoad_UnknownKeyFails(t *testing.T) {
	loader := NewLoader(filepath.Join("testdata", "invalid-unknown-key.yaml"), "test")
	_, err := loader.Load()

	if err == nil {
		t.Fatal("expected error due to unknown key, got nil")
	}
	if !errors.Is(err, ErrUnknownConfigField) {
		t.Fatalf("expected ErrUnknownConfigField, got: %v", err)
	}
	if !strings.Contains(err.Error(), "unexpectedRootKey") {
		t.Errorf("expected error to name the key, got: %v", err)
	}
}

// TestLoad_InvalidTypeFails tests that type mismatches are caught.
func TestLoad_InvalidTypeFails(t *testing.T) {
	loader := NewLoader(filepath.Join("testdata", "invalid-type.yaml"), "test")
	_, err := loader.Load()
	if err == nil {
		t.Fatal("expected error due to type mismatch, got nil")
	}
	if errors.Is(err, ErrUnknownConfigField) {
		t.Errorf("type mismatch must not be classified as unknown field: %v", err)
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := NewLoader("config.json", "test").Load()
	if err == nil || !strings.Contains(err.Error(), "unsupported config format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

// TestLoad_EnvOverridesFile verifies ENV > File precedence.
func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("CAMFETCH_CONNECT_RETRIES", "7")
	t.Setenv("CAMFETCH_FILE_TIMEOUT", "90s")
	t.Setenv("CAMFETCH_CLOUD_PASSWORD", "from-env")
	t.Setenv("CAMFETCH_DEADLINE", "2024-05-03T00:00:00Z")

	loader := NewLoader(filepath.Join("testdata", "valid-minimal.yaml"), "test")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Connect.Retries != 7 {
		t.Errorf("expected Retries=7, got %d", cfg.Connect.Retries)
	}
	if cfg.Transfer.FileTimeout != 90*time.Second {
		t.Errorf("expected FileTimeout=90s, got %s", cfg.Transfer.FileTimeout)
	}
	if cfg.Cloud.Password != "from-env" {
		t.Errorf("expected password from env")
	}
	if !cfg.Deadline.Equal(time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected deadline %s", cfg.Deadline)
	}
	if _, ok := loader.ConsumedEnvKeys["CAMFETCH_CONNECT_RETRIES"]; !ok {
		t.Errorf("expected CAMFETCH_CONNECT_RETRIES to be tracked as consumed")
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("CAMFETCH_CONNECT_RETRIES", "lots")
	cfg, err := NewLoader(filepath.Join("testdata", "valid-minimal.yaml"), "test").Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Connect.Retries != 10 {
		t.Errorf("expected default retries, got %d", cfg.Connect.Retries)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.Connect.Retries = 0
	cfg.Transfer.NoProgressTimeout = 0
	cfg.Ledger.Backend = "s3"
	cfg.Cameras = []CameraConfig{{Name: "CAM1"}, {Name: "cam1"}}

	err := Validate(cfg)
	var ve validate.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}

	fields := map[string]bool{}
	for _, e := range ve.Errors() {
		fields[e.Field] = true
	}
	for _, want := range []string{
		"mode", "cloud.url", "cloud.username", "connect.retries",
		"transfer.no_progress_timeout", "ledger.backend", "cameras[1].name",
	} {
		if !fields[want] {
			t.Errorf("expected error for %s, got %v", want, ve.Errors())
		}
	}
}

func TestValidate_DeadlineExclusive(t *testing.T) {
	cfg := Defaults()
	cfg.Cloud.URL = "https://cloud.example.com"
	cfg.Cloud.Username = "operator"
	cfg.Deadline = time.Now().Add(time.Hour)
	cfg.MaxProcessTime = time.Hour

	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected mutual exclusion error, got %v", err)
	}
}

func TestValidate_InvertedIntervalAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.Cloud.URL = "https://cloud.example.com"
	cfg.Cloud.Username = "operator"
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cfg.Cameras = []CameraConfig{{
		Name:      "CAM1",
		Intervals: []IntervalConfig{{Start: now, End: now.Add(-time.Hour)}},
	}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("inverted intervals are skipped at transfer time, got %v", err)
	}

	cfg.Cameras[0].Intervals = []IntervalConfig{{Start: now}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing interval end")
	}
}

func TestResolveDeadline(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	abs := start.Add(3 * time.Hour)

	tests := []struct {
		name string
		cfg  AppConfig
		want time.Time
	}{
		{"none", AppConfig{}, time.Time{}},
		{"absolute", AppConfig{Deadline: abs}, abs},
		{"relative", AppConfig{MaxProcessTime: time.Hour}, start.Add(time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolveDeadline(start); !got.Equal(tt.want) {
				t.Errorf("ResolveDeadline() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSelectCameras(t *testing.T) {
	cfg := AppConfig{Cameras: []CameraConfig{{Name: "CAM1"}, {Name: "CAM2"}, {Name: "CAM3"}}}

	if err := cfg.SelectCameras([]string{"cam3", "CAM1", "cam1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Cameras) != 2 || cfg.Cameras[0].Name != "CAM3" || cfg.Cameras[1].Name != "CAM1" {
		t.Errorf("unexpected selection: %+v", cfg.Cameras)
	}

	err := cfg.SelectCameras([]string{"CAM9"})
	if !errors.Is(err, ErrUnknownCamera) {
		t.Fatalf("expected ErrUnknownCamera, got %v", err)
	}
}

func validBase() AppConfig {
	cfg := Defaults()
	cfg.Cloud.URL = "https://cloud.example.com"
	cfg.Cloud.Username = "operator"
	return cfg
}

func TestValidate_OutputRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mode    string
		root    string
		wantErr bool
	}{
		{"download existing", ModeDownload, dir, false},
		{"download not yet created", ModeDownload, filepath.Join(dir, "recordings"), false},
		{"download empty", ModeDownload, "", true},
		{"download regular file", ModeDownload, file, true},
		{"reboot ignores output root", ModeReboot, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			cfg.Mode = tt.mode
			cfg.OutputRoot = tt.root
			err := Validate(cfg)
			if tt.wantErr && (err == nil || !strings.Contains(err.Error(), "output_root")) {
				t.Fatalf("expected output_root error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(dir, "recordings")); !os.IsNotExist(err) {
		t.Errorf("validation created the output root: %v", err)
	}
}

func TestValidate_MaxPollErrorsRange(t *testing.T) {
	for _, n := range []int{0, maxPollErrorsLimit + 1} {
		cfg := validBase()
		cfg.Transfer.MaxPollErrors = n
		if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "transfer.max_poll_errors") {
			t.Errorf("max_poll_errors=%d: expected range error, got %v", n, err)
		}
	}
	cfg := validBase()
	cfg.Transfer.MaxPollErrors = maxPollErrorsLimit
	if err := Validate(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
