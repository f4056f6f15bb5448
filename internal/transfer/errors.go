// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transfer

import "errors"

// Camera-fatal errors.
var (
	ErrSearchFailed = errors.New("transfer: file search failed")
	ErrNoFiles      = errors.New("transfer: no files found")
	ErrTargetDir    = errors.New("transfer: target directory unavailable")
)

// File-fatal errors. ErrDeadline also halts the camera.
var (
	ErrTransferOpen = errors.New("transfer: open failed")
	ErrPollFailed   = errors.New("transfer: too many consecutive poll errors")
	ErrFileTimeout  = errors.New("transfer: file timeout")
	ErrStalled      = errors.New("transfer: no progress")
	ErrDeadline     = errors.New("transfer: global deadline reached")
)

// Outcome is the terminal state of one file.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeStalled   Outcome = "stalled"
	OutcomeDeadline  Outcome = "deadline"
	OutcomeCancelled Outcome = "cancelled"
)

// Succeeded reports whether the file is present on disk after the outcome.
func (o Outcome) Succeeded() bool {
	return o == OutcomeCompleted || o == OutcomeSkipped
}
