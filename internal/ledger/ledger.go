// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ledger records which cameras are currently mid-flight.
//
// The ledger is a breadcrumb for operators: a name present after a crash
// marks a camera whose run did not finish cleanly. It is never read back
// to drive resumption.
package ledger

import "context"

// Ledger is a set of camera names. Add and Remove are idempotent.
type Ledger interface {
	Add(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
}
