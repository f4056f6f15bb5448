// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transfer

import "fmt"

// EmptyResultPolicy decides what an interval without recordings means for
// the camera.
type EmptyResultPolicy int

const (
	// AbortCamera stops the camera and releases its admission slot.
	AbortCamera EmptyResultPolicy = iota
	// SkipInterval moves on to the next interval.
	SkipInterval
)

// onEmpty is the single decision point for empty search results. A non-nil
// error is camera-fatal.
func (p EmptyResultPolicy) onEmpty(channel int, iv Interval) error {
	if p == SkipInterval {
		return nil
	}
	return fmt.Errorf("%w: channel %d, interval %s", ErrNoFiles, channel, iv)
}
