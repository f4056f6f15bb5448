// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ManuGH/camfetch/internal/deviceapi"
	xglog "github.com/ManuGH/camfetch/internal/log"
)

// Transfer is a broker-side playback download whose media is streamed to
// a local file.
type Transfer struct {
	client    *Client
	token     string
	id        string
	end       int64
	localPath string

	streamCancel context.CancelFunc
	streamDone   chan struct{}
	streamErr    error

	mu      sync.Mutex
	lastPos int64
	stopped bool
}

func newTransfer(c *Client, token, id string, end int64, localPath string) *Transfer {
	return &Transfer{
		client:     c,
		token:      token,
		id:         id,
		end:        end,
		localPath:  localPath,
		streamDone: make(chan struct{}),
		lastPos:    -1,
	}
}

func (t *Transfer) path(suffix string) string {
	return apiPrefix + "/transfers/" + url.PathEscape(t.id) + suffix
}

// startStream creates localPath and copies the media body into it until
// the broker closes the stream or Stop cancels it.
func (t *Transfer) startStream() error {
	// #nosec G304 -- localPath is derived from the configured output root
	f, err := os.OpenFile(t.localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return &deviceapi.Error{Sentinel: deviceapi.ErrBadResponse, Op: "OpenTransfer", Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.streamCancel = cancel

	go func() {
		defer close(t.streamDone)
		defer func() {
			if cerr := f.Close(); cerr != nil && t.streamErr == nil {
				t.streamErr = cerr
			}
		}()

		req := t.client.media.R().
			SetContext(ctx).
			SetAuthToken(t.token).
			SetDoNotParseResponse(true).
			SetHeader("Accept", "video/mp4")
		resp, err := req.Get(t.path("/media"))
		if err != nil {
			t.streamErr = transportError("StreamMedia", err)
			return
		}
		body := resp.RawBody()
		defer body.Close()
		if sentinel := deviceapi.StatusSentinel(resp.StatusCode()); sentinel != nil {
			t.streamErr = &deviceapi.Error{Sentinel: sentinel, Op: "StreamMedia", Status: resp.StatusCode()}
			return
		}
		if _, err := io.Copy(f, body); err != nil && !errors.Is(err, context.Canceled) {
			t.streamErr = &deviceapi.Error{Sentinel: deviceapi.ErrUnavailable, Op: "StreamMedia", Err: err}
		}
	}()
	return nil
}

type positionResponse struct {
	Position int64 `json:"position"`
}

// Position returns the media timestamp the broker has delivered so far.
func (t *Transfer) Position(ctx context.Context) (int64, error) {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return 0, deviceapi.ErrTransferStopped
	}

	var out positionResponse
	err := t.client.call(ctx, "Position", t.token, &out, func(req *resty.Request) (*resty.Response, error) {
		return req.Get(t.path("/position"))
	})
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	t.lastPos = out.Position
	t.mu.Unlock()
	return out.Position, nil
}

// Stop ends the broker transfer and waits for the media stream to drain.
// When the last reported position reached the end of the recording the
// local file is renamed to carry the media extension. If the broker
// rejects the stop the transfer stays active and may be polled and
// stopped again.
func (t *Transfer) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return deviceapi.ErrTransferStopped
	}

	if err := t.cancelRemote(ctx); err != nil && !isGone(err) {
		return err
	}
	t.stopped = true
	completed := t.lastPos+1 >= t.end

	grace := time.NewTimer(t.client.stopGrace)
	defer grace.Stop()
	select {
	case <-t.streamDone:
	case <-grace.C:
		t.streamCancel()
		<-t.streamDone
	case <-ctx.Done():
		t.streamCancel()
		<-t.streamDone
	}
	t.streamCancel()

	if !completed {
		return nil
	}
	if t.streamErr != nil {
		return fmt.Errorf("media stream: %w", t.streamErr)
	}
	if err := os.Rename(t.localPath, t.localPath+deviceapi.MediaExt); err != nil {
		return &deviceapi.Error{Sentinel: deviceapi.ErrBadResponse, Op: "StopTransfer", Err: err}
	}
	logger := xglog.WithComponent("deviceapi.cloud")
	logger.Debug().
		Str(xglog.FieldPath, t.localPath+deviceapi.MediaExt).
		Msg("transfer media published")
	return nil
}

func (t *Transfer) cancelRemote(ctx context.Context) error {
	return t.client.call(ctx, "StopTransfer", t.token, nil, func(req *resty.Request) (*resty.Response, error) {
		return req.Delete(t.path(""))
	})
}
