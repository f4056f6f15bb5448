// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package deviceapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnauthorized    = errors.New("deviceapi: login rejected")
	ErrNotFound        = errors.New("deviceapi: resource not found")
	ErrUnavailable     = errors.New("deviceapi: host unreachable or transport failure")
	ErrUpstream        = errors.New("deviceapi: internal error (5xx)")
	ErrBadResponse     = errors.New("deviceapi: invalid response format or malformed data")
	ErrTimeout         = errors.New("deviceapi: request timed out")
	ErrSessionClosed   = errors.New("deviceapi: session already closed")
	ErrTransferStopped = errors.New("deviceapi: transfer already stopped")
)

// Error is a rich error type that wraps the sentinel errors with context.
type Error struct {
	Sentinel error
	Op       string
	Status   int
	Body     string
	Err      error // Nested lower-level error (e.g. net.Error)
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("deviceapi: %s: %v", e.Op, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Sentinel
}

// StatusSentinel maps an HTTP status to the matching sentinel. It returns
// nil for 2xx.
func StatusSentinel(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status >= 500:
		return ErrUpstream
	default:
		return ErrBadResponse
	}
}
