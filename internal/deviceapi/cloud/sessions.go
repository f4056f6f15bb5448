// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cloud

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/ManuGH/camfetch/internal/deviceapi"
)

// Root is an authenticated cloud account session.
type Root struct {
	client *Client
	token  string

	mu     sync.Mutex
	closed bool
}

type deviceDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type deviceListResponse struct {
	Devices []deviceDTO `json:"devices"`
}

// ListDevices enumerates the cameras registered with the account.
func (r *Root) ListDevices(ctx context.Context) ([]deviceapi.DeviceInfo, error) {
	var out deviceListResponse
	err := r.client.call(ctx, "ListDevices", r.token, &out, func(req *resty.Request) (*resty.Response, error) {
		return req.Get(apiPrefix + "/devices")
	})
	if err != nil {
		return nil, err
	}
	devices := make([]deviceapi.DeviceInfo, 0, len(out.Devices))
	for _, d := range out.Devices {
		devices = append(devices, deviceapi.DeviceInfo{ID: d.ID, Name: d.Name, Address: d.Address})
	}
	return devices, nil
}

type sessionResponse struct {
	Session string `json:"session"`
}

// LoginDevice opens an exclusive session with one camera through the broker.
func (r *Root) LoginDevice(ctx context.Context, dev deviceapi.DeviceInfo) (deviceapi.Device, error) {
	var out sessionResponse
	err := r.client.call(ctx, "LoginDevice", r.token, &out, func(req *resty.Request) (*resty.Response, error) {
		return req.Post(apiPrefix + "/devices/" + url.PathEscape(dev.ID) + "/sessions")
	})
	if err != nil {
		return nil, err
	}
	if out.Session == "" {
		return nil, &deviceapi.Error{Sentinel: deviceapi.ErrBadResponse, Op: "LoginDevice", Body: "no session returned"}
	}
	return &Device{client: r.client, token: r.token, session: out.Session}, nil
}

// Logout ends the account session. A second call returns ErrSessionClosed.
func (r *Root) Logout(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return deviceapi.ErrSessionClosed
	}
	r.closed = true
	return r.client.call(ctx, "Logout", r.token, nil, func(req *resty.Request) (*resty.Response, error) {
		return req.Post(apiPrefix + "/logout")
	})
}

// Device is a broker-held session with a single camera.
type Device struct {
	client  *Client
	token   string
	session string

	mu     sync.Mutex
	closed bool
}

func (d *Device) path(suffix string) string {
	return apiPrefix + "/sessions/" + url.PathEscape(d.session) + suffix
}

type channelDTO struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

type channelListResponse struct {
	Channels []channelDTO `json:"channels"`
}

// ListChannels returns every video channel with its online state.
func (d *Device) ListChannels(ctx context.Context) ([]deviceapi.Channel, error) {
	var out channelListResponse
	err := d.client.call(ctx, "ListChannels", d.token, &out, func(req *resty.Request) (*resty.Response, error) {
		return req.Get(d.path("/channels"))
	})
	if err != nil {
		return nil, err
	}
	channels := make([]deviceapi.Channel, 0, len(out.Channels))
	for _, ch := range out.Channels {
		channels = append(channels, deviceapi.Channel{ID: ch.ID, Online: ch.Status == "online"})
	}
	return channels, nil
}

type fileDTO struct {
	Name  string `json:"name"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

type fileListResponse struct {
	Files []fileDTO `json:"files"`
}

// FindFiles searches recordings on channel overlapping [start, end).
func (d *Device) FindFiles(ctx context.Context, channel int, start, end int64) ([]deviceapi.FileInfo, error) {
	var out fileListResponse
	err := d.client.call(ctx, "FindFiles", d.token, &out, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetQueryParam("start", strconv.FormatInt(start, 10)).
			SetQueryParam("end", strconv.FormatInt(end, 10)).
			Get(d.path("/channels/" + strconv.Itoa(channel) + "/files"))
	})
	if err != nil {
		return nil, err
	}
	files := make([]deviceapi.FileInfo, 0, len(out.Files))
	for _, f := range out.Files {
		files = append(files, deviceapi.FileInfo{Name: f.Name, Start: f.Start, End: f.End})
	}
	return files, nil
}

type transferRequest struct {
	Channel int   `json:"channel"`
	Start   int64 `json:"start"`
	End     int64 `json:"end"`
}

type transferResponse struct {
	Transfer string `json:"transfer"`
}

// OpenTransfer asks the broker to start a playback download and streams the
// media into localPath in the background.
func (d *Device) OpenTransfer(ctx context.Context, channel int, start, end int64, localPath string) (deviceapi.Transfer, error) {
	var out transferResponse
	err := d.client.call(ctx, "OpenTransfer", d.token, &out, func(req *resty.Request) (*resty.Response, error) {
		return req.SetHeader("Content-Type", "application/json").
			SetBody(transferRequest{Channel: channel, Start: start, End: end}).
			Post(d.path("/transfers"))
	})
	if err != nil {
		return nil, err
	}
	if out.Transfer == "" {
		return nil, &deviceapi.Error{Sentinel: deviceapi.ErrBadResponse, Op: "OpenTransfer", Body: "no transfer returned"}
	}
	t := newTransfer(d.client, d.token, out.Transfer, end, localPath)
	if err := t.startStream(); err != nil {
		_ = t.cancelRemote(ctx)
		return nil, err
	}
	return t, nil
}

// Reboot requests a device restart.
func (d *Device) Reboot(ctx context.Context) error {
	return d.client.call(ctx, "Reboot", d.token, nil, func(req *resty.Request) (*resty.Response, error) {
		return req.Post(d.path("/reboot"))
	})
}

// Logout closes the device session. A second call returns ErrSessionClosed.
func (d *Device) Logout(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return deviceapi.ErrSessionClosed
	}
	d.closed = true
	err := d.client.call(ctx, "LogoutDevice", d.token, nil, func(req *resty.Request) (*resty.Response, error) {
		return req.Delete(d.path(""))
	})
	if isGone(err) {
		return nil
	}
	return err
}
