// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camfetch/internal/clock"
	"github.com/ManuGH/camfetch/internal/deviceapi"
	xglog "github.com/ManuGH/camfetch/internal/log"
)

// fileProgress is the mutable state of one polling loop.
type fileProgress struct {
	length      int64
	downloaded  int64
	best        int64
	elapsed     time.Duration
	pollErrors  int
	lastPercent int
	started     time.Time
	progressAt  time.Time
}

// observe applies a successful position sample. A strict increase of the
// downloaded length resets the stall reference.
func (p *fileProgress) observe(f deviceapi.FileInfo, pos int64, now time.Time) {
	p.pollErrors = 0
	p.downloaded = p.length - (f.End - pos)
	if p.downloaded > p.best {
		p.best = p.downloaded
		p.progressAt = now
	}
}

// percentStep returns the new percentage and true when it advanced by more
// than one point past the last logged value.
func (p *fileProgress) percentStep() (int, bool) {
	if p.length <= 0 {
		return p.lastPercent, false
	}
	pct := 100 * float64(p.downloaded) / float64(p.length)
	if pct > float64(p.lastPercent+1) {
		p.lastPercent = int(pct)
		return p.lastPercent, true
	}
	return p.lastPercent, false
}

// download drives one file from open to a terminal outcome. The transfer is
// stopped on every exit path once it has been opened.
func (e *Engine) download(ctx context.Context, dev deviceapi.Device, channel int, f deviceapi.FileInfo, target Target, logger zerolog.Logger) (Outcome, error) {
	xfer, err := dev.OpenTransfer(ctx, channel, f.Start, f.End, target.Partial())
	if err != nil {
		return OutcomeFailed, fmt.Errorf("%w: %w", ErrTransferOpen, err)
	}
	logger.Debug().
		Str(xglog.FieldEvent, "transfer.started").
		Time("from", time.Unix(f.Start, 0).UTC()).
		Msg("starting download")

	now := e.clock.Now()
	p := &fileProgress{length: f.End - f.Start, started: now, progressAt: now}

	stop := func() {
		if err := xfer.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "transfer.stop_failed").Msg("stopping transfer failed")
		}
	}

	for e.clock.Now().Sub(p.started) <= e.cfg.FileTimeout {
		pos, err := xfer.Position(ctx)
		if err == nil {
			p.observe(f, pos, e.clock.Now())
			if pos+1 >= f.End {
				serr := xfer.Stop(ctx)
				if serr == nil {
					logger.Info().
						Str(xglog.FieldEvent, "transfer.completed").
						Dur("download_time", p.elapsed).
						Msg("file downloaded")
					return OutcomeCompleted, nil
				}
				logger.Warn().Err(serr).Str(xglog.FieldEvent, "transfer.stop_failed").Msg("stop after completion failed, polling again")
			}
		} else {
			if ctx.Err() != nil {
				stop()
				return OutcomeCancelled, ctx.Err()
			}
			p.pollErrors++
			logger.Debug().Err(err).Int("consecutive", p.pollErrors).Msg("position query failed")
			if p.pollErrors > e.cfg.MaxPollErrors {
				stop()
				return OutcomeFailed, fmt.Errorf("%w (%d): %w", ErrPollFailed, p.pollErrors, err)
			}
		}

		now := e.clock.Now()
		if p.elapsed > e.cfg.FileTimeout || now.Sub(p.started) > e.cfg.FileTimeout {
			stop()
			logger.Error().Str(xglog.FieldEvent, "transfer.timeout").Dur("download_time", p.elapsed).Msg("file was not downloaded in time")
			return OutcomeTimedOut, fmt.Errorf("%w after %s", ErrFileTimeout, p.elapsed)
		}
		if now.Sub(p.progressAt) > e.cfg.NoProgressTimeout {
			stop()
			logger.Error().
				Str(xglog.FieldEvent, "transfer.stalled").
				Time("since", p.progressAt).
				Dur("stalled_for", now.Sub(p.progressAt)).
				Msg("download stuck, cancelling")
			return OutcomeStalled, fmt.Errorf("%w for %s", ErrStalled, now.Sub(p.progressAt))
		}
		if e.deadlinePassed(now) {
			stop()
			logger.Error().Str(xglog.FieldEvent, "transfer.deadline").Msg("cancelled due to global deadline")
			return OutcomeDeadline, ErrDeadline
		}

		p.elapsed += e.cfg.PollInterval
		if pct, ok := p.percentStep(); ok {
			logger.Debug().Int(xglog.FieldPercent, pct).Msg("download progress")
		}

		if err := clock.Sleep(ctx, e.clock, e.cfg.PollInterval); err != nil {
			stop()
			return OutcomeCancelled, err
		}
	}

	stop()
	logger.Error().Str(xglog.FieldEvent, "transfer.timeout").Msg("file budget exhausted")
	return OutcomeTimedOut, fmt.Errorf("%w: wall clock exceeded %s", ErrFileTimeout, e.cfg.FileTimeout)
}
