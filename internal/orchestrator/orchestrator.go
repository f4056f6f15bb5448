// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package orchestrator runs one fetch or reboot pass over the camera fleet.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/camfetch/internal/admission"
	"github.com/ManuGH/camfetch/internal/clock"
	"github.com/ManuGH/camfetch/internal/config"
	"github.com/ManuGH/camfetch/internal/connect"
	"github.com/ManuGH/camfetch/internal/deviceapi"
	"github.com/ManuGH/camfetch/internal/journal"
	xglog "github.com/ManuGH/camfetch/internal/log"
	"github.com/ManuGH/camfetch/internal/metrics"
	"github.com/ManuGH/camfetch/internal/telemetry"
	"github.com/ManuGH/camfetch/internal/transfer"
)

// defaultParallelism applies when no camera matched.
const defaultParallelism = 10

var (
	ErrCloudLogin   = errors.New("orchestrator: cloud login failed")
	ErrFleetListing = errors.New("orchestrator: device listing failed")
	ErrNotAdmitted  = errors.New("orchestrator: camera not admitted")
	ErrUnknownMode  = errors.New("orchestrator: unknown mode")
)

// CameraSpec is a configured camera and its recording windows.
type CameraSpec struct {
	Name      string
	Intervals []transfer.Interval
}

// Config describes one run.
type Config struct {
	Mode     string
	CloudURL string
	Username string
	Password string
	Cameras  []CameraSpec
}

// Admission is the shared slot service.
type Admission interface {
	TryAdmit(ctx context.Context, name string) (bool, admission.Reason)
	Release(ctx context.Context, name string) bool
}

// Connector establishes device sessions.
type Connector interface {
	Connect(ctx context.Context, root deviceapi.Root, dev deviceapi.DeviceInfo) (*connect.Session, error)
}

// Engine downloads the recordings of one admitted camera.
type Engine interface {
	Run(ctx context.Context, cam transfer.Camera) (transfer.Report, error)
}

// Recorder persists run summaries.
type Recorder interface {
	RecordRun(ctx context.Context, run journal.Run) error
}

// Deps are the collaborators of an Orchestrator. Journal is optional.
type Deps struct {
	Client    deviceapi.Client
	Admission Admission
	Connector Connector
	Engine    Engine
	Journal   Recorder
}

// Progress is a point-in-time view of the current run.
type Progress struct {
	RunID     string
	Mode      string
	StartedAt time.Time
	Cameras   int
	Finished  int
	Running   bool
}

// Orchestrator fans camera tasks out and collects their results.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	clock  clock.Clock
	tracer trace.Tracer
	logger zerolog.Logger

	mu       sync.RWMutex
	progress Progress
	finished atomic.Int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the clock used for run timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithTracer replaces the tracer used for camera spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New returns an Orchestrator.
func New(cfg Config, deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		clock:  clock.Real{},
		tracer: telemetry.Tracer("camfetch/orchestrator"),
		logger: xglog.WithComponent("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Progress returns the state of the current or last run.
func (o *Orchestrator) Progress() Progress {
	o.mu.RLock()
	p := o.progress
	o.mu.RUnlock()
	p.Finished = int(o.finished.Load())
	return p
}

type target struct {
	info      deviceapi.DeviceInfo
	intervals []transfer.Interval
}

// Run logs into the cloud, processes every matched camera concurrently and
// logs out once all camera tasks have finished. Only a failed cloud login
// or device listing fails the run itself; camera failures are reported in
// the summary.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	if o.cfg.Mode != config.ModeDownload && o.cfg.Mode != config.ModeReboot {
		return Summary{}, fmt.Errorf("%w: %q", ErrUnknownMode, o.cfg.Mode)
	}

	summary := Summary{RunID: uuid.NewString(), Mode: o.cfg.Mode, StartedAt: o.clock.Now()}
	ctx = xglog.ContextWithRunID(ctx, summary.RunID)
	logger := xglog.WithContext(ctx, o.logger).With().Str(xglog.FieldMode, o.cfg.Mode).Logger()

	o.mu.Lock()
	o.progress = Progress{RunID: summary.RunID, Mode: summary.Mode, StartedAt: summary.StartedAt, Running: true}
	o.mu.Unlock()
	o.finished.Store(0)
	defer func() {
		o.mu.Lock()
		o.progress.Running = false
		o.mu.Unlock()
		metrics.ObserveRun(o.cfg.Mode, o.clock.Now().Sub(summary.StartedAt))
	}()

	logger.Debug().Str(xglog.FieldEvent, "cloud.login").Str("url", o.cfg.CloudURL).Str("user", o.cfg.Username).Msg("connecting to the cloud")
	root, err := o.deps.Client.Login(ctx, o.cfg.CloudURL, o.cfg.Username, o.cfg.Password)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "cloud.login_failed").Msg("error connecting to cloud account")
		return summary, fmt.Errorf("%w: %w", ErrCloudLogin, err)
	}
	logger.Info().Str(xglog.FieldEvent, "cloud.connected").Str("url", o.cfg.CloudURL).Msg("connected to the cloud")
	defer func() {
		if err := root.Logout(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "cloud.logout_failed").Msg("cloud logout failed")
		}
	}()

	devices, err := root.ListDevices(ctx)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "cloud.list_failed").Msg("error getting list of cameras in cloud account")
		return summary, fmt.Errorf("%w: %w", ErrFleetListing, err)
	}
	targets, missing := o.match(devices)
	summary.Missing = missing
	for _, name := range missing {
		logger.Warn().Str(xglog.FieldEvent, "camera.missing").Str(xglog.FieldCamera, name).Msg("configured camera not found in cloud account")
	}
	logger.Info().Str(xglog.FieldEvent, "camera.matched").Int("cameras", len(targets)).Msg("available cameras for processing")

	o.mu.Lock()
	o.progress.Cameras = len(targets)
	o.mu.Unlock()

	summary.Results = make([]Result, len(targets))
	var g errgroup.Group
	g.SetLimit(parallelism(len(targets)))
	for i, t := range targets {
		g.Go(func() error {
			summary.Results[i] = o.runCamera(ctx, root, t)
			o.finished.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = o.clock.Now()
	o.record(ctx, logger, summary)

	successful := summary.Successful()
	logger.Info().
		Str(xglog.FieldEvent, "run.finished").
		Int("cameras", len(summary.Results)).
		Int("successful", len(successful)).
		Strs("successful_cameras", successful).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("run finished")
	return summary, nil
}

// parallelism is the camera count, or defaultParallelism when it is zero.
func parallelism(cameras int) int {
	if cameras == 0 {
		return defaultParallelism
	}
	return cameras
}

// match keeps devices whose upper-cased name equals exactly one configured
// camera, preserving the listing order.
// matchKey folds a camera name for comparison: NFC first, so composed and
// decomposed accents compare equal, then upper case.
func matchKey(name string) string {
	return strings.ToUpper(norm.NFC.String(name))
}

func (o *Orchestrator) match(devices []deviceapi.DeviceInfo) ([]target, []string) {
	found := make(map[string]bool, len(o.cfg.Cameras))
	var targets []target
	for _, dev := range devices {
		key := matchKey(dev.Name)
		var hit *CameraSpec
		hits := 0
		for i := range o.cfg.Cameras {
			if matchKey(o.cfg.Cameras[i].Name) == key {
				hit = &o.cfg.Cameras[i]
				hits++
			}
		}
		if hits != 1 {
			continue
		}
		found[key] = true
		targets = append(targets, target{info: dev, intervals: hit.Intervals})
	}

	var missing []string
	for _, c := range o.cfg.Cameras {
		if !found[matchKey(c.Name)] {
			missing = append(missing, c.Name)
		}
	}
	return targets, missing
}

func (o *Orchestrator) runCamera(ctx context.Context, root deviceapi.Root, t target) (res Result) {
	name := t.info.Name
	res.Camera = name
	ctx = xglog.ContextWithCamera(ctx, name)
	ctx, span := o.tracer.Start(ctx, "camera."+o.cfg.Mode,
		trace.WithAttributes(telemetry.CameraAttributes(xglog.RunIDFromContext(ctx), o.cfg.Mode, name, t.info.Address)...))
	logger := xglog.WithContext(ctx, o.logger)
	defer func() {
		span.SetAttributes(attribute.String("camera.outcome", string(res.Outcome)))
		telemetry.EndSpan(span, res.Err)
		metrics.RecordCameraOutcome(o.cfg.Mode, string(res.Outcome))
		ev := logger.Info()
		if res.Outcome != OutcomeSucceeded {
			ev = logger.Error().Err(res.Err)
		}
		ev.Str(xglog.FieldEvent, "camera.finished").Str(xglog.FieldOutcome, string(res.Outcome)).Msg("camera processed")
	}()

	sess, err := o.deps.Connector.Connect(ctx, root, t.info)
	if err != nil {
		res.Outcome, res.Err = OutcomeConnectFailed, err
		if ctx.Err() != nil {
			res.Outcome = OutcomeCancelled
		}
		return res
	}
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "camera.logout_failed").Msg("device logout failed")
		}
	}()

	if o.cfg.Mode == config.ModeReboot {
		return o.reboot(ctx, logger, sess, res)
	}
	return o.download(ctx, logger, sess, t, res)
}

func (o *Orchestrator) reboot(ctx context.Context, logger zerolog.Logger, sess *connect.Session, res Result) Result {
	logger.Debug().Str(xglog.FieldEvent, "camera.reboot").Msg("rebooting camera")
	if err := sess.Device.Reboot(ctx); err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("reboot: %w", err)
		return res
	}
	logger.Info().Str(xglog.FieldEvent, "camera.rebooted").Msg("camera is rebooted")
	res.Outcome = OutcomeSucceeded
	return res
}

func (o *Orchestrator) download(ctx context.Context, logger zerolog.Logger, sess *connect.Session, t target, res Result) Result {
	if ok, reason := o.deps.Admission.TryAdmit(ctx, t.info.Name); !ok {
		res.Outcome, res.Err = OutcomeNotAdmitted, fmt.Errorf("%w: %s", ErrNotAdmitted, reason)
		return res
	}

	logger.Debug().Str(xglog.FieldEvent, "camera.search").Int("channels", len(sess.Channels)).Msg("searching for files to download")
	rep, err := o.deps.Engine.Run(ctx, transfer.Camera{
		Name:      t.info.Name,
		Device:    sess.Device,
		Channels:  sess.Channels,
		Intervals: t.intervals,
	})
	res.Downloaded, res.Skipped, res.Failed, res.MediaSeconds = rep.Completed, rep.Skipped, rep.Failed, rep.MediaSeconds
	res.Err = err
	switch {
	case err == nil:
		res.Outcome = OutcomeSucceeded
	case errors.Is(err, transfer.ErrDeadline):
		res.Outcome = OutcomeDeadline
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		res.Outcome = OutcomeCancelled
	default:
		res.Outcome = OutcomeFailed
	}
	return res
}

func (o *Orchestrator) record(ctx context.Context, logger zerolog.Logger, s Summary) {
	if o.deps.Journal == nil {
		return
	}
	if err := o.deps.Journal.RecordRun(context.WithoutCancel(ctx), s.Journal()); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "journal.write_failed").Msg("failed to record run in journal")
	}
}
