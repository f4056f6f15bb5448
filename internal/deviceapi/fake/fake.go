// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fake is an in-memory Device API used by tests and dry runs.
package fake

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/ManuGH/camfetch/internal/deviceapi"
)

// Progress computes the position reported by the poll-th Position call
// (1-based) of a transfer covering f.
type Progress func(f deviceapi.FileInfo, poll int) (int64, error)

// Monotonic advances the position by step seconds per poll, starting at f.Start.
func Monotonic(step int64) Progress {
	return func(f deviceapi.FileInfo, poll int) (int64, error) {
		return f.Start + int64(poll-1)*step, nil
	}
}

// Frozen always reports f.Start+offset.
func Frozen(offset int64) Progress {
	return func(f deviceapi.FileInfo, _ int) (int64, error) {
		return f.Start + offset, nil
	}
}

// Failing fails every poll with err.
func Failing(err error) Progress {
	return func(deviceapi.FileInfo, int) (int64, error) {
		return 0, err
	}
}

// Stats counts calls made against one camera.
type Stats struct {
	LoginAttempts int
	Logins        int
	Logouts       int
	Searches      int
	Opens         int
	Polls         int
	Stops         int
	Reboots       int
	OpenSessions  int
}

// Camera is a simulated device. Exported fields configure behaviour and
// must be set before the camera is used.
type Camera struct {
	Info     deviceapi.DeviceInfo
	Channels []deviceapi.Channel
	// Files lists recordings per channel ID.
	Files map[int][]deviceapi.FileInfo

	// FailLogins makes the first N device logins fail.
	FailLogins  int
	ChannelsErr error
	FindErr     error
	OpenErr     error
	StopErr     error
	RebootErr   error
	// FailStops makes the first N transfer stops on the camera fail with
	// an upstream error. The transfer stays active after a failed stop.
	FailStops int
	Progress    Progress

	// OnLogin runs after a successful device login.
	OnLogin func()

	mu    sync.Mutex
	stats Stats
}

// Stats returns a snapshot of the camera's counters.
func (c *Camera) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Fleet is a cloud account holding a set of cameras.
type Fleet struct {
	LoginErr error
	ListErr  error

	mu          sync.Mutex
	cameras     []*Camera
	rootLogins  int
	rootLogouts int
}

var _ deviceapi.Client = (*Fleet)(nil)

// NewFleet returns a fleet holding cams in listing order.
func NewFleet(cams ...*Camera) *Fleet {
	return &Fleet{cameras: cams}
}

// RootSessions returns the number of root logins and logouts.
func (f *Fleet) RootSessions() (logins, logouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rootLogins, f.rootLogouts
}

func (f *Fleet) Login(ctx context.Context, _, _, _ string) (deviceapi.Root, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.LoginErr != nil {
		return nil, f.LoginErr
	}
	f.mu.Lock()
	f.rootLogins++
	f.mu.Unlock()
	return &root{fleet: f}, nil
}

type root struct {
	fleet *Fleet

	mu     sync.Mutex
	closed bool
}

func (r *root) ListDevices(ctx context.Context) ([]deviceapi.DeviceInfo, error) {
	if r.fleet.ListErr != nil {
		return nil, r.fleet.ListErr
	}
	r.fleet.mu.Lock()
	defer r.fleet.mu.Unlock()
	out := make([]deviceapi.DeviceInfo, 0, len(r.fleet.cameras))
	for _, c := range r.fleet.cameras {
		out = append(out, c.Info)
	}
	return out, nil
}

func (r *root) LoginDevice(ctx context.Context, dev deviceapi.DeviceInfo) (deviceapi.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cam *Camera
	r.fleet.mu.Lock()
	for _, c := range r.fleet.cameras {
		if c.Info.ID == dev.ID && strings.EqualFold(c.Info.Name, dev.Name) {
			cam = c
			break
		}
	}
	r.fleet.mu.Unlock()
	if cam == nil {
		return nil, &deviceapi.Error{Sentinel: deviceapi.ErrNotFound, Op: "LoginDevice", Body: dev.Name}
	}

	cam.mu.Lock()
	cam.stats.LoginAttempts++
	if cam.stats.LoginAttempts <= cam.FailLogins {
		cam.mu.Unlock()
		return nil, &deviceapi.Error{Sentinel: deviceapi.ErrUnavailable, Op: "LoginDevice", Body: dev.Name}
	}
	cam.stats.Logins++
	cam.stats.OpenSessions++
	hook := cam.OnLogin
	cam.mu.Unlock()

	if hook != nil {
		hook()
	}
	return &device{cam: cam}, nil
}

func (r *root) Logout(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return deviceapi.ErrSessionClosed
	}
	r.closed = true
	r.fleet.mu.Lock()
	r.fleet.rootLogouts++
	r.fleet.mu.Unlock()
	return nil
}

type device struct {
	cam *Camera

	mu     sync.Mutex
	closed bool
}

func (d *device) ListChannels(context.Context) ([]deviceapi.Channel, error) {
	if d.cam.ChannelsErr != nil {
		return nil, d.cam.ChannelsErr
	}
	out := make([]deviceapi.Channel, len(d.cam.Channels))
	copy(out, d.cam.Channels)
	return out, nil
}

func (d *device) FindFiles(_ context.Context, channel int, start, end int64) ([]deviceapi.FileInfo, error) {
	d.cam.mu.Lock()
	d.cam.stats.Searches++
	d.cam.mu.Unlock()
	if d.cam.FindErr != nil {
		return nil, d.cam.FindErr
	}
	var out []deviceapi.FileInfo
	for _, f := range d.cam.Files[channel] {
		if f.End > start && f.Start < end {
			out = append(out, f)
		}
	}
	return out, nil
}

func (d *device) OpenTransfer(_ context.Context, _ int, start, end int64, localPath string) (deviceapi.Transfer, error) {
	d.cam.mu.Lock()
	d.cam.stats.Opens++
	d.cam.mu.Unlock()
	if d.cam.OpenErr != nil {
		return nil, d.cam.OpenErr
	}
	if err := os.WriteFile(localPath, nil, 0o600); err != nil {
		return nil, &deviceapi.Error{Sentinel: deviceapi.ErrBadResponse, Op: "OpenTransfer", Err: err}
	}
	progress := d.cam.Progress
	if progress == nil {
		progress = Monotonic(1)
	}
	return &transfer{
		cam:      d.cam,
		file:     deviceapi.FileInfo{Start: start, End: end},
		path:     localPath,
		progress: progress,
		lastPos:  -1,
	}, nil
}

func (d *device) Reboot(context.Context) error {
	d.cam.mu.Lock()
	d.cam.stats.Reboots++
	d.cam.mu.Unlock()
	return d.cam.RebootErr
}

func (d *device) Logout(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return deviceapi.ErrSessionClosed
	}
	d.closed = true
	d.cam.mu.Lock()
	d.cam.stats.Logouts++
	d.cam.stats.OpenSessions--
	d.cam.mu.Unlock()
	return nil
}

type transfer struct {
	cam      *Camera
	file     deviceapi.FileInfo
	path     string
	progress Progress

	mu      sync.Mutex
	polls   int
	lastPos int64
	stopped bool
}

func (t *transfer) Position(context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return 0, deviceapi.ErrTransferStopped
	}
	t.polls++
	t.cam.mu.Lock()
	t.cam.stats.Polls++
	t.cam.mu.Unlock()

	pos, err := t.progress(t.file, t.polls)
	if err != nil {
		return 0, err
	}
	t.lastPos = pos
	return pos, nil
}

func (t *transfer) Stop(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return deviceapi.ErrTransferStopped
	}
	t.cam.mu.Lock()
	t.cam.stats.Stops++
	stopErr := t.cam.StopErr
	if stopErr == nil && t.cam.stats.Stops <= t.cam.FailStops {
		stopErr = &deviceapi.Error{Sentinel: deviceapi.ErrUpstream, Op: "StopTransfer", Status: 502}
	}
	t.cam.mu.Unlock()
	if stopErr != nil {
		return stopErr
	}
	t.stopped = true
	if t.lastPos+1 >= t.file.End {
		if err := os.Rename(t.path, t.path+deviceapi.MediaExt); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &deviceapi.Error{Sentinel: deviceapi.ErrBadResponse, Op: "StopTransfer", Err: err}
		}
	}
	return nil
}
