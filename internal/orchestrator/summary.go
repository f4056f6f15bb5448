// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"time"

	"github.com/ManuGH/camfetch/internal/journal"
)

// Outcome is the terminal state of one camera task.
type Outcome string

const (
	OutcomeSucceeded     Outcome = "succeeded"
	OutcomeConnectFailed Outcome = "connect_failed"
	OutcomeNotAdmitted   Outcome = "not_admitted"
	OutcomeFailed        Outcome = "failed"
	OutcomeDeadline      Outcome = "deadline"
	OutcomeCancelled     Outcome = "cancelled"
)

// Result is the outcome of one camera.
type Result struct {
	Camera       string
	Outcome      Outcome
	Downloaded   int
	Skipped      int
	Failed       int
	MediaSeconds int64
	Err          error
}

// Summary is the observable result of a run.
type Summary struct {
	RunID      string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	// Results follow the order in which the cloud listed the devices.
	Results []Result
	// Missing lists configured cameras the cloud did not report.
	Missing []string
}

// Successful returns the names of cameras that succeeded, in result order.
func (s Summary) Successful() []string {
	var out []string
	for _, r := range s.Results {
		if r.Outcome == OutcomeSucceeded {
			out = append(out, r.Camera)
		}
	}
	return out
}

// SuccessCount returns the number of successful cameras.
func (s Summary) SuccessCount() int {
	return len(s.Successful())
}

// Journal converts the summary into its persisted form.
func (s Summary) Journal() journal.Run {
	run := journal.Run{
		ID:         s.RunID,
		Mode:       s.Mode,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Cameras:    make([]journal.CameraResult, 0, len(s.Results)),
	}
	for _, r := range s.Results {
		cr := journal.CameraResult{
			Camera:       r.Camera,
			Outcome:      string(r.Outcome),
			Completed:    r.Downloaded,
			Skipped:      r.Skipped,
			Failed:       r.Failed,
			MediaSeconds: r.MediaSeconds,
		}
		if r.Err != nil {
			cr.Error = r.Err.Error()
		}
		run.Cameras = append(run.Cameras, cr)
	}
	return run
}
