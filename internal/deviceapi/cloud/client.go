// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cloud implements the Device API over the broker's JSON REST API.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/ManuGH/camfetch/internal/deviceapi"
	"github.com/ManuGH/camfetch/internal/metrics"
)

const (
	apiPrefix         = "/api/v1"
	defaultTimeout    = 30 * time.Second
	defaultRateLimit  = 10
	defaultRateBurst  = 20
	defaultStopGrace  = 10 * time.Second
	maxErrorBodyBytes = 512
)

// ErrServerMismatch is returned by Login when serverURL names a different
// broker than the one the Client was built for.
var ErrServerMismatch = errors.New("cloud: login server differs from client base URL")

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	RateLimit rate.Limit // requests per second across all sessions
	RateBurst int
	// StopGrace bounds how long Stop waits for the media stream to drain.
	StopGrace time.Duration
	UserAgent string
}

// Client talks to one cloud broker. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *resty.Client
	// media carries long-lived transfer streams and has no overall timeout.
	media     *resty.Client
	limiter   *rate.Limiter
	stopGrace time.Duration
}

var _ deviceapi.Client = (*Client)(nil)

// New returns a Client for the broker at baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = defaultRateBurst
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = defaultStopGrace
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "camfetch"
	}

	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		limiter:   rate.NewLimiter(opts.RateLimit, opts.RateBurst),
		stopGrace: opts.StopGrace,
	}

	c.http = c.newResty(opts.UserAgent)
	c.http.SetTimeout(opts.Timeout)
	c.media = c.newResty(opts.UserAgent)
	return c
}

// newResty builds a resty client whose transport emits a client span per
// request and injects the trace context into the outgoing headers.
func (c *Client) newResty(userAgent string) *resty.Client {
	r := resty.New()
	r.SetBaseURL(c.baseURL)
	r.SetTransport(otelhttp.NewTransport(
		http.DefaultTransport.(*http.Transport).Clone(),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return "deviceapi " + req.Method
		}),
	))
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", userAgent)
	r.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return c.limiter.Wait(req.Context())
	})
	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login authenticates against the broker and returns the account session.
func (c *Client) Login(ctx context.Context, serverURL, username, password string) (deviceapi.Root, error) {
	if serverURL != "" && strings.TrimRight(serverURL, "/") != c.baseURL {
		return nil, fmt.Errorf("%w: %s", ErrServerMismatch, serverURL)
	}
	var out loginResponse
	err := c.call(ctx, "Login", "", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").
			SetBody(loginRequest{Username: username, Password: password}).
			Post(apiPrefix + "/login")
	})
	if err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &deviceapi.Error{Sentinel: deviceapi.ErrBadResponse, Op: "Login", Body: "no token returned"}
	}
	return &Root{client: c, token: out.Token}, nil
}

// call runs one request and maps transport and status failures onto
// deviceapi.Error. out, when non-nil, receives the decoded JSON body.
func (c *Client) call(ctx context.Context, op, token string, out any, do func(*resty.Request) (*resty.Response, error)) error {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	start := time.Now()
	resp, err := do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	metrics.ObserveDeviceAPIRequest(op, status, time.Since(start))

	if err != nil {
		return transportError(op, err)
	}
	if sentinel := deviceapi.StatusSentinel(status); sentinel != nil {
		return &deviceapi.Error{Sentinel: sentinel, Op: op, Status: status, Body: truncate(resp.String())}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &deviceapi.Error{Sentinel: deviceapi.ErrBadResponse, Op: op, Status: status, Err: err}
	}
	return nil
}

func transportError(op string, err error) error {
	sentinel := deviceapi.ErrUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		sentinel = deviceapi.ErrTimeout
	}
	return &deviceapi.Error{Sentinel: sentinel, Op: op, Err: err}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBodyBytes {
		return s[:maxErrorBodyBytes] + "..."
	}
	return s
}

func isGone(err error) bool {
	var apiErr *deviceapi.Error
	return errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusGone)
}
