// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID   = "run_id"
	FieldCamera  = "camera"
	FieldAddress = "address"
	FieldMode    = "mode"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldAttempt   = "attempt"

	// Transfer fields
	FieldChannel  = "channel"
	FieldFile     = "file"
	FieldInterval = "interval"
	FieldPercent  = "percent"
	FieldOutcome  = "outcome"

	// Path fields
	FieldPath   = "path"
	FieldLedger = "ledger"

	// Trace fields
	FieldTraceID = "trace_id"
	FieldSpanID  = "span_id"
)
