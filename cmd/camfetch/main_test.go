// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camfetch/internal/config"
	"github.com/ManuGH/camfetch/internal/deviceapi"
	"github.com/ManuGH/camfetch/internal/deviceapi/fake"
	"github.com/ManuGH/camfetch/internal/orchestrator"
	"github.com/ManuGH/camfetch/internal/version"
)

var windowStart = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camfetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersionCommand(t *testing.T) {
	code, out, _ := run(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, version.Version)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
cloud:
  url: https://cloud.example.com
  username: operator
  password: secret
output_root: `+filepath.Join(dir, "out")+`
ledger:
  path: `+filepath.Join(dir, "ledger.txt")+`
cameras:
  - name: CAM1
    intervals:
      - start: 2024-05-01T00:00:00Z
        end: 2024-05-01T06:00:00Z
`)
	code, out, stderr := run(t, "validate", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "configuration OK")
	assert.Contains(t, out, "cameras=1")
}

func TestValidateCommand_RejectsBadConfig(t *testing.T) {
	path := writeConfig(t, "cloud:\n  url: https://cloud.example.com\n")
	code, _, stderr := run(t, "validate", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error:")
}

func TestLedgerCommand(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "FailedCameras.txt")
	require.NoError(t, os.WriteFile(ledgerPath, []byte("CAM1\nCAM7\n"), 0o600))
	path := writeConfig(t, `
mode: reboot
cloud:
  url: https://cloud.example.com
  username: operator
  password: secret
ledger:
  path: `+ledgerPath+`
cameras:
  - name: CAM1
`)
	code, out, stderr := run(t, "ledger", "--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "CAM1\nCAM7\n", out)

	data, err := os.ReadFile(ledgerPath)
	require.NoError(t, err)
	assert.Equal(t, "CAM1\nCAM7\n", string(data))
}

func TestHistoryCommand_RequiresJournal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
mode: reboot
cloud:
  url: https://cloud.example.com
  username: operator
  password: secret
ledger:
  path: `+filepath.Join(dir, "ledger.txt")+`
cameras:
  - name: CAM1
`)
	code, _, stderr := run(t, "history", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, errNoJournal.Error())
}

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.OutputRoot = filepath.Join(dir, "recordings")
	cfg.Cloud.URL = "https://cloud.test"
	cfg.Cloud.Username = "operator"
	cfg.Cloud.Password = "secret"
	cfg.Connect.InitialDelay = time.Millisecond
	cfg.Transfer.PollInterval = time.Millisecond
	cfg.AdmissionPollInterval = 10 * time.Millisecond
	cfg.Ledger.Path = filepath.Join(dir, "FailedCameras.txt")
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.Cameras = []config.CameraConfig{{
		Name: "CAM1",
		Intervals: []config.IntervalConfig{{
			Start: windowStart,
			End:   windowStart.Add(time.Hour),
		}},
	}}
	return cfg
}

func fleetWithRecording() (*fake.Fleet, *fake.Camera) {
	start := windowStart.Add(time.Minute).Unix()
	cam := &fake.Camera{
		Info:     deviceapi.DeviceInfo{ID: "1", Name: "CAM1", Address: "10.0.0.1"},
		Channels: []deviceapi.Channel{{ID: 1, Online: true}},
		Files: map[int][]deviceapi.FileInfo{
			1: {{Name: "rec", Start: start, End: start + 3}},
		},
	}
	return fake.NewFleet(cam), cam
}

func TestRunFetch_Download(t *testing.T) {
	cfg := testConfig(t)
	fleet, cam := fleetWithRecording()

	var out bytes.Buffer
	summary, err := runFetch(context.Background(), cfg, fleet, &out)
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, orchestrator.OutcomeSucceeded, summary.Results[0].Outcome)
	assert.Equal(t, 1, summary.Results[0].Downloaded)
	assert.Contains(t, out.String(), "1 of 1 cameras successful: CAM1")

	matches, err := filepath.Glob(filepath.Join(cfg.OutputRoot, "CAM1", "*"+deviceapi.MediaExt))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Zero(t, cam.Stats().OpenSessions)

	code, hist, stderr := runHistory(t, cfg)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, hist, "journal integrity OK")
	assert.Contains(t, hist, summary.RunID)
}

func runHistory(t *testing.T, cfg config.AppConfig) (int, string, string) {
	t.Helper()
	path := writeConfig(t, `
mode: reboot
cloud:
  url: https://cloud.example.com
  username: operator
  password: secret
ledger:
  path: `+cfg.Ledger.Path+`
journal:
  path: `+cfg.Journal.Path+`
cameras:
  - name: CAM1
`)
	return run(t, "history", "--config", path, "--verify")
}

func TestRunFetch_Reboot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = config.ModeReboot
	cfg.Journal.Path = ""
	fleet, cam := fleetWithRecording()

	var out bytes.Buffer
	summary, err := runFetch(context.Background(), cfg, fleet, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"CAM1"}, summary.Successful())
	assert.Equal(t, 1, cam.Stats().Reboots)
	assert.Zero(t, cam.Stats().Opens)
}

func TestRunFetch_ReportsMissingCameras(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cameras = append(cfg.Cameras, config.CameraConfig{Name: "CAM9"})
	fleet, _ := fleetWithRecording()

	var out bytes.Buffer
	summary, err := runFetch(context.Background(), cfg, fleet, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"CAM9"}, summary.Missing)
	assert.Contains(t, out.String(), "not found in cloud account: CAM9")
}

func TestRunFetch_LoginFailure(t *testing.T) {
	cfg := testConfig(t)
	fleet, _ := fleetWithRecording()
	fleet.LoginErr = &deviceapi.Error{Sentinel: deviceapi.ErrUnauthorized, Op: "Login"}

	var out bytes.Buffer
	_, err := runFetch(context.Background(), cfg, fleet, &out)
	require.ErrorIs(t, err, orchestrator.ErrCloudLogin)
	assert.Empty(t, out.String())
}

func TestDownloadCommand_UnknownCamera(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
cloud:
  url: https://cloud.example.com
  username: operator
  password: secret
output_root: `+filepath.Join(dir, "out")+`
ledger:
  path: `+filepath.Join(dir, "ledger.txt")+`
cameras:
  - name: CAM1
    intervals:
      - start: 2024-05-01T00:00:00Z
        end: 2024-05-01T06:00:00Z
`)
	code, _, stderr := run(t, "download", "--config", path, "--cameras", "CAM2")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "CAM2")
}

func TestDownloadCommand_RevalidatesForMode(t *testing.T) {
	dir := t.TempDir()
	notADir := filepath.Join(dir, "recordings")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o600))
	path := writeConfig(t, `
mode: reboot
cloud:
  url: http://127.0.0.1:1
  username: operator
  password: secret
output_root: `+notADir+`
ledger:
  path: `+filepath.Join(dir, "ledger.txt")+`
cameras:
  - name: CAM1
`)
	code, _, stderr := run(t, "validate", "--config", path)
	require.Equal(t, 0, code, stderr)

	code, _, stderr = run(t, "download", "--config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "output_root")
	assert.Contains(t, stderr, "config validation failed for download")
}
