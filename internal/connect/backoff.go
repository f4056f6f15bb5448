// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package connect

import "time"

// RetryDelay returns the pause before attempt k (1-based). The first
// attempt runs immediately; afterwards the delay grows by initial every
// third attempt: initial * ceil(k/3).
func RetryDelay(initial time.Duration, attempt int) time.Duration {
	if attempt <= 1 || initial <= 0 {
		return 0
	}
	steps := (attempt + 2) / 3
	return initial * time.Duration(steps)
}
