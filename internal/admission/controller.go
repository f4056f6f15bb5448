// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package admission caps the number of simultaneously active camera sessions.
package admission

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camfetch/internal/clock"
	"github.com/ManuGH/camfetch/internal/ledger"
	xglog "github.com/ManuGH/camfetch/internal/log"
	"github.com/ManuGH/camfetch/internal/metrics"
)

// Reason explains an admission decision. Values are lowercase for stable metric labels.
type Reason string

const (
	ReasonAdmitted      Reason = "admitted"
	ReasonAtCapacity    Reason = "at_capacity"
	ReasonAlreadyActive Reason = "already_active"
)

const defaultPollInterval = 10 * time.Second

// Controller tracks admitted cameras. The active set and the ledger are
// only touched while mu is held, so len(active) never exceeds max.
type Controller struct {
	mu      sync.Mutex
	max     int
	active  map[string]struct{}
	changed chan struct{} // closed and replaced on every release

	ledger       ledger.Ledger
	clock        clock.Clock
	pollInterval time.Duration
	logger       zerolog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock used for bounded waits.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithPollInterval bounds a single wait in WaitForCapacity.
func WithPollInterval(d time.Duration) Option {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.pollInterval = d
		}
	}
}

// New returns a Controller admitting at most max cameras. Admissions and
// releases are mirrored into l.
func New(max int, l ledger.Ledger, opts ...Option) *Controller {
	if max <= 0 {
		max = 1
	}
	c := &Controller{
		max:          max,
		active:       make(map[string]struct{}),
		changed:      make(chan struct{}),
		ledger:       l,
		clock:        clock.Real{},
		pollInterval: defaultPollInterval,
		logger:       xglog.WithComponent("admission"),
	}
	for _, opt := range opts {
		opt(c)
	}
	metrics.SetActiveCameras(0)
	return c
}

// TryAdmit claims a slot for name if one is free.
func (c *Controller) TryAdmit(ctx context.Context, name string) (bool, Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := xglog.WithContext(ctx, c.logger)
	if _, ok := c.active[name]; ok {
		metrics.RecordAdmission(string(ReasonAlreadyActive))
		return false, ReasonAlreadyActive
	}
	if len(c.active) >= c.max {
		metrics.RecordAdmission(string(ReasonAtCapacity))
		logger.Warn().
			Str(xglog.FieldEvent, "admission.rejected").
			Str(xglog.FieldCamera, name).
			Int("active", len(c.active)).
			Int("max", c.max).
			Msg("camera skipped: active camera limit reached")
		return false, ReasonAtCapacity
	}

	c.active[name] = struct{}{}
	if c.ledger != nil {
		if err := c.ledger.Add(ctx, name); err != nil {
			logger.Error().Err(err).
				Str(xglog.FieldEvent, "ledger.add_failed").
				Str(xglog.FieldCamera, name).
				Msg("failed to record camera in ledger")
		}
	}
	metrics.RecordAdmission(string(ReasonAdmitted))
	metrics.SetActiveCameras(float64(len(c.active)))
	logger.Info().
		Str(xglog.FieldEvent, "admission.granted").
		Str(xglog.FieldCamera, name).
		Int("active", len(c.active)).
		Int("max", c.max).
		Msg("camera admitted")
	return true, ReasonAdmitted
}

// Release frees the slot held by name and removes it from the ledger.
// It is idempotent and reports whether a slot was actually freed.
func (c *Controller) Release(ctx context.Context, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := xglog.WithContext(ctx, c.logger)
	_, wasActive := c.active[name]
	delete(c.active, name)

	if c.ledger != nil {
		if err := c.ledger.Remove(ctx, name); err != nil {
			logger.Error().Err(err).
				Str(xglog.FieldEvent, "ledger.remove_failed").
				Str(xglog.FieldCamera, name).
				Msg("failed to remove camera from ledger")
		}
	}
	if !wasActive {
		return false
	}

	metrics.SetActiveCameras(float64(len(c.active)))
	close(c.changed)
	c.changed = make(chan struct{})
	logger.Info().
		Str(xglog.FieldEvent, "admission.released").
		Str(xglog.FieldCamera, name).
		Int("free", c.max-len(c.active)).
		Msg("camera slot released")
	return true
}

// WaitForCapacity blocks while the controller is full. It wakes on every
// release and re-checks at least once per poll interval. Capacity is not
// reserved: a later TryAdmit may still fail.
func (c *Controller) WaitForCapacity(ctx context.Context) error {
	for {
		c.mu.Lock()
		if len(c.active) < c.max {
			c.mu.Unlock()
			return nil
		}
		changed := c.changed
		active := len(c.active)
		c.mu.Unlock()

		metrics.RecordAdmissionWait()
		logger := xglog.WithContext(ctx, c.logger)
		logger.Debug().
			Str(xglog.FieldEvent, "admission.wait").
			Int("active", active).
			Int("max", c.max).
			Dur("max_wait", c.pollInterval).
			Msg("active camera limit reached, waiting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-c.clock.After(c.pollInterval):
		}
	}
}

// Active returns the number of admitted cameras.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Capacity returns the configured cap.
func (c *Controller) Capacity() int {
	return c.max
}

// IsActive reports whether name currently holds a slot.
func (c *Controller) IsActive(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[name]
	return ok
}

// Names returns the admitted camera names in sorted order.
func (c *Controller) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.active))
	for n := range c.active {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
