// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/camfetch/internal/admission"
	"github.com/ManuGH/camfetch/internal/clock"
	"github.com/ManuGH/camfetch/internal/config"
	"github.com/ManuGH/camfetch/internal/connect"
	"github.com/ManuGH/camfetch/internal/deviceapi"
	"github.com/ManuGH/camfetch/internal/deviceapi/fake"
	"github.com/ManuGH/camfetch/internal/journal"
	"github.com/ManuGH/camfetch/internal/ledger"
	"github.com/ManuGH/camfetch/internal/transfer"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type rig struct {
	fleet *fake.Fleet
	gate  *admission.Controller
	led   *ledger.File
	clock *clock.Fake
	root  string

	deadline time.Time
	journal  Recorder
}

func newRig(t *testing.T, maxActive int, cams ...*fake.Camera) *rig {
	t.Helper()
	led := ledger.NewFile(filepath.Join(t.TempDir(), "FailedCameras.txt"))
	return &rig{
		fleet: fake.NewFleet(cams...),
		gate:  admission.New(maxActive, led),
		led:   led,
		clock: clock.NewFake(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
		root:  filepath.Join(t.TempDir(), "recordings"),
	}
}

func (r *rig) orchestrator(mode string, specs ...CameraSpec) *Orchestrator {
	conn := connect.New(connect.Config{MaxRetries: 2, InitialDelay: time.Second, MaxConnectTime: time.Hour},
		r.gate, connect.WithClock(r.clock))
	eng := transfer.New(transfer.Config{
		OutputRoot:        r.root,
		FileTimeout:       30 * time.Minute,
		NoProgressTimeout: 5 * time.Minute,
		Deadline:          r.deadline,
	}, r.gate, transfer.WithClock(r.clock))
	return New(Config{
		Mode:     mode,
		CloudURL: "https://cloud.test",
		Username: "operator",
		Password: "secret",
		Cameras:  specs,
	}, Deps{
		Client:    r.fleet,
		Admission: r.gate,
		Connector: conn,
		Engine:    eng,
		Journal:   r.journal,
	}, WithClock(r.clock))
}

func camera(id, name string, files ...deviceapi.FileInfo) *fake.Camera {
	return &fake.Camera{
		Info:     deviceapi.DeviceInfo{ID: id, Name: name, Address: "10.0.0." + id},
		Channels: []deviceapi.Channel{{ID: 1, Online: true}, {ID: 2, Online: false}},
		Files:    map[int][]deviceapi.FileInfo{1: files},
	}
}

func rec(start, length int) deviceapi.FileInfo {
	s := t0.Add(time.Duration(start) * time.Second).Unix()
	return deviceapi.FileInfo{Name: "rec", Start: s, End: s + int64(length)}
}

func spec(name string) CameraSpec {
	return CameraSpec{Name: name, Intervals: []transfer.Interval{{Start: t0, End: t0.Add(2 * time.Minute)}}}
}

func TestRun_SingleCameraDownload(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cam := camera("1", "CAM1", rec(0, 60))
	cam.Progress = fake.Monotonic(1)
	r := newRig(t, 10, cam)

	summary, err := r.orchestrator(config.ModeDownload, spec("CAM1")).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	res := summary.Results[0]
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, int64(60), res.MediaSeconds)
	assert.Equal(t, []string{"CAM1"}, summary.Successful())
	assert.NotEmpty(t, summary.RunID)

	stats := cam.Stats()
	assert.GreaterOrEqual(t, stats.Polls, 60)
	assert.Equal(t, 1, stats.Logouts)
	assert.Equal(t, 0, stats.OpenSessions)
	assert.FileExists(t, filepath.Join(r.root, "CAM1", transfer.NewTarget("", rec(0, 60)).Base+".mp4"))

	assert.Equal(t, 0, r.gate.Active())
	names, err := r.led.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)

	logins, logouts := r.fleet.RootSessions()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 1, logouts)
}

func TestRun_MatchesFleetCaseInsensitively(t *testing.T) {
	cam1 := camera("1", "cam1", rec(0, 5))
	cam2 := camera("2", "Cam2", rec(0, 5))
	other := camera("3", "OTHER", rec(0, 5))
	r := newRig(t, 10, cam1, cam2, other)

	summary, err := r.orchestrator(config.ModeDownload, spec("CAM1"), spec("CAM2"), spec("CAM3")).Run(context.Background())
	require.NoError(t, err)

	var names []string
	for _, res := range summary.Results {
		names = append(names, res.Camera)
	}
	if diff := cmp.Diff([]string{"cam1", "Cam2"}, names); diff != "" {
		t.Errorf("matched cameras (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"CAM3"}, summary.Missing)
	assert.Zero(t, other.Stats().LoginAttempts)
	assert.Equal(t, 2, summary.SuccessCount())
}

func TestRun_CloudLoginFailureAbortsRun(t *testing.T) {
	cam := camera("1", "CAM1", rec(0, 5))
	r := newRig(t, 10, cam)
	r.fleet.LoginErr = &deviceapi.Error{Sentinel: deviceapi.ErrUnauthorized, Op: "Login", Status: 401}

	_, err := r.orchestrator(config.ModeDownload, spec("CAM1")).Run(context.Background())
	require.ErrorIs(t, err, ErrCloudLogin)
	assert.ErrorIs(t, err, deviceapi.ErrUnauthorized)
	assert.Zero(t, cam.Stats().LoginAttempts)
}

func TestRun_FleetListingFailure(t *testing.T) {
	r := newRig(t, 10)
	r.fleet.ListErr = errors.New("list failed")

	_, err := r.orchestrator(config.ModeDownload, spec("CAM1")).Run(context.Background())
	require.ErrorIs(t, err, ErrFleetListing)
	logins, logouts := r.fleet.RootSessions()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 1, logouts, "root session released on the error path")
}

func TestRun_UnknownMode(t *testing.T) {
	r := newRig(t, 10)
	_, err := r.orchestrator("upload").Run(context.Background())
	require.ErrorIs(t, err, ErrUnknownMode)
	logins, _ := r.fleet.RootSessions()
	assert.Zero(t, logins)
}

func TestRun_CameraFailuresAreIsolated(t *testing.T) {
	broken := camera("1", "CAM1", rec(0, 5))
	broken.FailLogins = 100
	empty := camera("2", "CAM2")
	healthy := camera("3", "CAM3", rec(0, 5), rec(10, 5))
	r := newRig(t, 10, broken, empty, healthy)

	summary, err := r.orchestrator(config.ModeDownload, spec("CAM1"), spec("CAM2"), spec("CAM3")).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)

	assert.Equal(t, OutcomeConnectFailed, summary.Results[0].Outcome)
	assert.ErrorIs(t, summary.Results[0].Err, connect.ErrRetriesExhausted)
	assert.Equal(t, 2, broken.Stats().LoginAttempts)

	assert.Equal(t, OutcomeFailed, summary.Results[1].Outcome)
	assert.ErrorIs(t, summary.Results[1].Err, transfer.ErrNoFiles)
	assert.Equal(t, 0, empty.Stats().OpenSessions)

	assert.Equal(t, OutcomeSucceeded, summary.Results[2].Outcome)
	assert.Equal(t, 2, summary.Results[2].Downloaded)
	assert.Equal(t, []string{"CAM3"}, summary.Successful())
	assert.Equal(t, 0, r.gate.Active())
}

func TestRun_AdmissionCapNeverExceeded(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		mu        sync.Mutex
		maxActive int
	)
	cams := make([]*fake.Camera, 0, 4)
	specs := make([]CameraSpec, 0, 4)
	r := newRig(t, 1)
	for _, name := range []string{"CAM1", "CAM2", "CAM3", "CAM4"} {
		c := camera(name, name, rec(0, 5))
		c.OnLogin = func() {
			mu.Lock()
			defer mu.Unlock()
			if n := r.gate.Active(); n > maxActive {
				maxActive = n
			}
		}
		cams = append(cams, c)
		specs = append(specs, spec(name))
	}
	r.fleet = fake.NewFleet(cams...)

	summary, err := r.orchestrator(config.ModeDownload, specs...).Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, maxActive, 1)
	assert.GreaterOrEqual(t, summary.SuccessCount(), 1)
	for _, res := range summary.Results {
		assert.Contains(t, []Outcome{OutcomeSucceeded, OutcomeNotAdmitted}, res.Outcome, res.Camera)
		if res.Outcome == OutcomeNotAdmitted {
			assert.ErrorIs(t, res.Err, ErrNotAdmitted)
		}
	}
	for _, c := range cams {
		assert.Equal(t, 0, c.Stats().OpenSessions, c.Info.Name)
	}
	assert.Equal(t, 0, r.gate.Active())
}

func TestRun_DeadlineHaltsCamera(t *testing.T) {
	cam := camera("1", "CAM1", rec(0, 100), rec(100, 10))
	r := newRig(t, 10, cam)
	r.deadline = r.clock.Now().Add(3 * time.Second)

	summary, err := r.orchestrator(config.ModeDownload, spec("CAM1")).Run(context.Background())
	require.NoError(t, err)
	res := summary.Results[0]
	assert.Equal(t, OutcomeDeadline, res.Outcome)
	assert.ErrorIs(t, res.Err, transfer.ErrDeadline)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, cam.Stats().Opens)
	assert.Equal(t, 0, cam.Stats().OpenSessions)
}

func TestRun_Reboot(t *testing.T) {
	ok := camera("1", "CAM1")
	failing := camera("2", "CAM2")
	failing.RebootErr = &deviceapi.Error{Sentinel: deviceapi.ErrUpstream, Op: "Reboot", Status: 502}
	r := newRig(t, 10, ok, failing)

	summary, err := r.orchestrator(config.ModeReboot, spec("CAM1"), spec("CAM2")).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, summary.Results[0].Outcome)
	assert.Equal(t, OutcomeFailed, summary.Results[1].Outcome)
	assert.ErrorIs(t, summary.Results[1].Err, deviceapi.ErrUpstream)
	for _, c := range []*fake.Camera{ok, failing} {
		s := c.Stats()
		assert.Equal(t, 1, s.Reboots, "one reboot, no retry")
		assert.Zero(t, s.Searches)
		assert.Equal(t, 0, s.OpenSessions)
	}
	names, err := r.led.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names, "reboot runs do not claim admission slots")
}

func TestRun_RecordsJournal(t *testing.T) {
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	cam := camera("1", "CAM1", rec(0, 5))
	r := newRig(t, 10, cam)
	r.journal = store

	summary, err := r.orchestrator(config.ModeDownload, spec("CAM1")).Run(context.Background())
	require.NoError(t, err)

	runs, err := store.Runs(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].ID)
	require.Len(t, runs[0].Cameras, 1)
	assert.Equal(t, "succeeded", runs[0].Cameras[0].Outcome)
	assert.Equal(t, 1, runs[0].Cameras[0].Completed)
}

func TestProgress(t *testing.T) {
	cam := camera("1", "CAM1", rec(0, 5))
	r := newRig(t, 10, cam)
	o := r.orchestrator(config.ModeDownload, spec("CAM1"))
	assert.False(t, o.Progress().Running)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	p := o.Progress()
	assert.Equal(t, summary.RunID, p.RunID)
	assert.Equal(t, 1, p.Cameras)
	assert.Equal(t, 1, p.Finished)
	assert.False(t, p.Running)
}

func TestParallelism(t *testing.T) {
	assert.Equal(t, 10, parallelism(0))
	assert.Equal(t, 1, parallelism(1))
	assert.Equal(t, 25, parallelism(25))
}

func TestSummary_Journal(t *testing.T) {
	s := Summary{
		RunID: "r", Mode: "download",
		Results: []Result{
			{Camera: "CAM1", Outcome: OutcomeSucceeded, Downloaded: 2, MediaSeconds: 120},
			{Camera: "CAM2", Outcome: OutcomeConnectFailed, Err: connect.ErrConnectTimeout},
		},
	}
	run := s.Journal()
	want := []journal.CameraResult{
		{Camera: "CAM1", Outcome: "succeeded", Completed: 2, MediaSeconds: 120},
		{Camera: "CAM2", Outcome: "connect_failed", Error: connect.ErrConnectTimeout.Error()},
	}
	if diff := cmp.Diff(want, run.Cameras); diff != "" {
		t.Errorf("journal cameras (-want +got):\n%s", diff)
	}
}

func TestMatchKey_NormalizesUnicode(t *testing.T) {
	composed := "Caf\u00e9-Nord"
	decomposed := "CAFE\u0301-NORD"
	assert.Equal(t, matchKey(composed), matchKey(decomposed))
	assert.NotEqual(t, matchKey("CAFE-NORD"), matchKey(composed))
}

func TestRun_MatchesDecomposedDeviceNames(t *testing.T) {
	cam := camera("1", "cafe\u0301-nord")
	r := newRig(t, 10, cam)

	summary, err := r.orchestrator(config.ModeReboot, spec("CAF\u00c9-NORD")).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Empty(t, summary.Missing)
	assert.Equal(t, 1, cam.Stats().Reboots)
}
