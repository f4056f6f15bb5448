// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package connect establishes device sessions with bounded retry.
package connect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camfetch/internal/clock"
	"github.com/ManuGH/camfetch/internal/deviceapi"
	xglog "github.com/ManuGH/camfetch/internal/log"
	"github.com/ManuGH/camfetch/internal/metrics"
)

var (
	// ErrConnectTimeout means the overall connect budget elapsed before a session was established.
	ErrConnectTimeout = errors.New("connect: maximum connect time exceeded")
	// ErrRetriesExhausted means every attempt failed.
	ErrRetriesExhausted = errors.New("connect: retries exhausted")
)

// Gate is the admission surface the connector consults.
type Gate interface {
	WaitForCapacity(ctx context.Context) error
	Release(ctx context.Context, name string) bool
}

// Config bounds the retry loop.
type Config struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxConnectTime time.Duration
}

// Session is an established device session with its online channels in
// discovery order. The owner must call Close exactly once.
type Session struct {
	Info     deviceapi.DeviceInfo
	Device   deviceapi.Device
	Channels []deviceapi.Channel
	Attempts int
}

// Close logs the device session out.
func (s *Session) Close(ctx context.Context) error {
	return s.Device.Logout(ctx)
}

// Connector runs the per-camera connect loop.
type Connector struct {
	cfg    Config
	gate   Gate
	clock  clock.Clock
	logger zerolog.Logger
}

// Option configures a Connector.
type Option func(*Connector)

// WithClock replaces the wall clock used for backoff and the connect budget.
func WithClock(c clock.Clock) Option {
	return func(cn *Connector) { cn.clock = c }
}

// New returns a Connector.
func New(cfg Config, gate Gate, opts ...Option) *Connector {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	c := &Connector{
		cfg:    cfg,
		gate:   gate,
		clock:  clock.Real{},
		logger: xglog.WithComponent("connect"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect logs into dev through root and enumerates its online channels.
// A failed login releases any admission held by the camera. A failed
// channel enumeration logs the device out and counts as a failed attempt.
func (c *Connector) Connect(ctx context.Context, root deviceapi.Root, dev deviceapi.DeviceInfo) (*Session, error) {
	logger := xglog.WithContext(ctx, c.logger).With().
		Str(xglog.FieldCamera, dev.Name).
		Str(xglog.FieldAddress, dev.Address).
		Logger()

	var (
		start   time.Time
		lastErr error
	)
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if delay := RetryDelay(c.cfg.InitialDelay, attempt); delay > 0 {
			logger.Debug().
				Str(xglog.FieldEvent, "connect.backoff").
				Int(xglog.FieldAttempt, attempt).
				Dur("delay", delay).
				Msg("retrying after delay")
			if err := clock.Sleep(ctx, c.clock, delay); err != nil {
				metrics.RecordConnectOutcome("cancelled")
				return nil, err
			}
		}

		if err := c.gate.WaitForCapacity(ctx); err != nil {
			metrics.RecordConnectOutcome("cancelled")
			return nil, err
		}

		now := c.clock.Now()
		if attempt == 1 {
			start = now
		} else if elapsed := now.Sub(start); elapsed > c.cfg.MaxConnectTime {
			metrics.RecordConnectOutcome("timeout")
			logger.Error().
				Str(xglog.FieldEvent, "connect.timeout").
				Int(xglog.FieldAttempt, attempt).
				Dur("elapsed", elapsed).
				Dur("max_connect_time", c.cfg.MaxConnectTime).
				Msg("exceeded maximum connection time")
			return nil, fmt.Errorf("%w after %d attempts (%s)", ErrConnectTimeout, attempt-1, elapsed)
		}

		logger.Debug().
			Str(xglog.FieldEvent, "connect.attempt").
			Int(xglog.FieldAttempt, attempt).
			Msg("trying to connect to camera")

		device, err := c.login(ctx, root, dev)
		if err != nil {
			lastErr = err
			metrics.RecordConnectAttempt("login_failed")
			c.gate.Release(ctx, dev.Name)
			logger.Error().Err(err).
				Str(xglog.FieldEvent, "connect.login_failed").
				Int(xglog.FieldAttempt, attempt).
				Msg("camera login failed")
			continue
		}

		channels, err := device.ListChannels(ctx)
		if err != nil {
			lastErr = err
			metrics.RecordConnectAttempt("channels_failed")
			logger.Error().Err(err).
				Str(xglog.FieldEvent, "connect.channels_failed").
				Int(xglog.FieldAttempt, attempt).
				Msg("unable to get list of channels")
			if lerr := device.Logout(ctx); lerr != nil {
				logger.Warn().Err(lerr).Str(xglog.FieldEvent, "connect.logout_failed").Msg("device logout failed")
			}
			continue
		}

		online := make([]deviceapi.Channel, 0, len(channels))
		for _, ch := range channels {
			logger.Debug().Int(xglog.FieldChannel, ch.ID).Bool("online", ch.Online).Msg("channel status")
			if ch.Online {
				online = append(online, ch)
			}
		}

		metrics.RecordConnectAttempt("success")
		metrics.RecordConnectOutcome("connected")
		logger.Info().
			Str(xglog.FieldEvent, "connect.connected").
			Int(xglog.FieldAttempt, attempt).
			Int("channels", len(channels)).
			Int("online", len(online)).
			Msg("camera connected")
		return &Session{Info: dev, Device: device, Channels: online, Attempts: attempt}, nil
	}

	metrics.RecordConnectOutcome("exhausted")
	logger.Error().
		Str(xglog.FieldEvent, "connect.exhausted").
		Int("attempts", c.cfg.MaxRetries).
		Msg("all connect attempts failed")
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.cfg.MaxRetries, lastErr)
}

func (c *Connector) login(ctx context.Context, root deviceapi.Root, dev deviceapi.DeviceInfo) (deviceapi.Device, error) {
	device, err := root.LoginDevice(ctx, dev)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, &deviceapi.Error{Sentinel: deviceapi.ErrBadResponse, Op: "LoginDevice", Body: "nil session"}
	}
	return device, nil
}
