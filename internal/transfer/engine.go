// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transfer downloads the recordings of one connected camera.
//
// For every online channel and configured interval the engine searches the
// device, skips recordings already on disk and drives each remaining file
// through a polling state machine bounded by a per-file timeout, a stall
// watchdog and the global deadline. Files fail independently; search
// failures and the global deadline stop the camera.
package transfer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/camfetch/internal/clock"
	"github.com/ManuGH/camfetch/internal/deviceapi"
	"github.com/ManuGH/camfetch/internal/fsutil"
	xglog "github.com/ManuGH/camfetch/internal/log"
	"github.com/ManuGH/camfetch/internal/metrics"
	"github.com/ManuGH/camfetch/internal/telemetry"
)

const (
	defaultPollInterval  = time.Second
	defaultMaxPollErrors = 5
)

// Interval is a configured recording window.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval is non-empty.
func (iv Interval) Valid() bool { return iv.Start.Before(iv.End) }

func (iv Interval) String() string {
	return iv.Start.UTC().Format(time.RFC3339) + "/" + iv.End.UTC().Format(time.RFC3339)
}

// Config bounds a camera's transfer work.
type Config struct {
	OutputRoot        string
	FileTimeout       time.Duration
	NoProgressTimeout time.Duration
	PollInterval      time.Duration
	MaxPollErrors     int
	// Deadline is the global deadline; zero disables it.
	Deadline    time.Time
	EmptyResult EmptyResultPolicy
}

// Releaser frees a camera's admission slot. Release must be idempotent.
type Releaser interface {
	Release(ctx context.Context, name string) bool
}

// Camera is a connected camera ready for transfers.
type Camera struct {
	Name      string
	Device    deviceapi.Device
	Channels  []deviceapi.Channel
	Intervals []Interval
}

// Report counts per-file outcomes of one camera.
type Report struct {
	Completed    int
	Skipped      int
	Failed       int
	MediaSeconds int64
}

func (r *Report) add(o Outcome, f deviceapi.FileInfo) {
	switch o {
	case OutcomeCompleted:
		r.Completed++
		r.MediaSeconds += f.End - f.Start
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// Engine runs camera transfers. It is safe for concurrent use by several
// camera tasks.
type Engine struct {
	cfg    Config
	gate   Releaser
	clock  clock.Clock
	tracer trace.Tracer
	logger zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the clock that drives polling and timeouts.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTracer replaces the tracer used for file spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New returns an Engine.
func New(cfg Config, gate Releaser, opts ...Option) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollErrors <= 0 {
		cfg.MaxPollErrors = defaultMaxPollErrors
	}
	e := &Engine{
		cfg:    cfg,
		gate:   gate,
		clock:  clock.Real{},
		tracer: telemetry.Tracer("camfetch/transfer"),
		logger: xglog.WithComponent("transfer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) deadlinePassed(now time.Time) bool {
	return !e.cfg.Deadline.IsZero() && now.After(e.cfg.Deadline)
}

// Run downloads every recording of cam. The admission slot is released
// before Run returns; the device session stays with the caller.
func (e *Engine) Run(ctx context.Context, cam Camera) (Report, error) {
	var rep Report
	ctx = xglog.ContextWithCamera(ctx, cam.Name)
	logger := xglog.WithContext(ctx, e.logger)
	defer e.gate.Release(context.WithoutCancel(ctx), cam.Name)

	var dir string
	for _, ch := range cam.Channels {
		for _, iv := range cam.Intervals {
			ivLogger := logger.With().Int(xglog.FieldChannel, ch.ID).Stringer(xglog.FieldInterval, iv).Logger()
			if !iv.Valid() {
				ivLogger.Warn().Str(xglog.FieldEvent, "transfer.invalid_interval").Msg("interval start must precede end, skipping")
				continue
			}

			files, err := cam.Device.FindFiles(ctx, ch.ID, iv.Start.Unix(), iv.End.Unix())
			if err != nil {
				return rep, e.abortCamera(ctx, cam.Name, ivLogger, fmt.Errorf("%w: channel %d: %w", ErrSearchFailed, ch.ID, err))
			}
			ivLogger.Info().Str(xglog.FieldEvent, "transfer.search").Int("files", len(files)).Msg("found files to download")
			if len(files) == 0 {
				if err := e.cfg.EmptyResult.onEmpty(ch.ID, iv); err != nil {
					return rep, e.abortCamera(ctx, cam.Name, ivLogger, err)
				}
				continue
			}

			if dir == "" {
				if dir, err = e.cameraDir(cam.Name); err != nil {
					return rep, e.abortCamera(ctx, cam.Name, ivLogger, fmt.Errorf("%w: %w", ErrTargetDir, err))
				}
			}

			for _, f := range files {
				outcome, err := e.transferFile(ctx, cam, ch.ID, f, dir, ivLogger)
				rep.add(outcome, f)
				if outcome == OutcomeCancelled {
					return rep, err
				}
				if e.deadlinePassed(e.clock.Now()) {
					logger.Warn().Str(xglog.FieldEvent, "transfer.deadline").Msg("global deadline reached, stopping camera")
					return rep, ErrDeadline
				}
			}
		}
	}
	return rep, nil
}

// abortCamera releases the camera's slot and ledger entry ahead of the
// deferred release so waiting cameras can proceed.
func (e *Engine) abortCamera(ctx context.Context, name string, logger zerolog.Logger, err error) error {
	if e.gate.Release(context.WithoutCancel(ctx), name) {
		logger.Warn().Str(xglog.FieldEvent, "transfer.slot_released").Msg("camera removed from active set")
	}
	logger.Error().Err(err).Str(xglog.FieldEvent, "transfer.camera_aborted").Msg("camera transfer aborted")
	return err
}

func (e *Engine) cameraDir(camera string) (string, error) {
	if err := os.MkdirAll(e.cfg.OutputRoot, 0o755); err != nil {
		return "", err
	}
	dir, err := fsutil.ConfineRelPath(e.cfg.OutputRoot, camera)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (e *Engine) transferFile(ctx context.Context, cam Camera, channel int, f deviceapi.FileInfo, dir string, logger zerolog.Logger) (Outcome, error) {
	target := NewTarget(dir, f)
	logger = logger.With().Str(xglog.FieldFile, target.Base).Logger()

	present, err := target.Present()
	if err != nil {
		logger.Warn().Err(err).Msg("could not check for existing file, downloading")
	}
	if present {
		logger.Debug().Str(xglog.FieldEvent, "transfer.skipped").Msg("file already exists")
		metrics.RecordFileOutcome(string(OutcomeSkipped), 0)
		return OutcomeSkipped, nil
	}

	ctx, span := e.tracer.Start(ctx, "transfer.file",
		trace.WithAttributes(telemetry.FileAttributes(cam.Name, channel, f.Name, f.Start, f.End)...))
	started := e.clock.Now()
	outcome, err := e.download(ctx, cam.Device, channel, f, target, logger)
	span.SetAttributes(attribute.String(telemetry.FileOutcomeKey, string(outcome)))
	telemetry.EndSpan(span, err)

	metrics.RecordFileOutcome(string(outcome), e.clock.Now().Sub(started))
	if outcome == OutcomeCompleted {
		metrics.AddDownloadedMedia(f.End - f.Start)
		return outcome, nil
	}

	logger.Error().Err(err).Str(xglog.FieldOutcome, string(outcome)).Msg("file download failed")
	if rerr := fsutil.RemoveIfExists(target.Partial()); rerr != nil {
		logger.Error().Err(rerr).Str(xglog.FieldPath, target.Partial()).Str(xglog.FieldEvent, "transfer.cleanup_failed").Msg("error deleting partial file")
	} else {
		logger.Info().Str(xglog.FieldPath, target.Partial()).Msg("partial file deleted")
	}
	return outcome, err
}
