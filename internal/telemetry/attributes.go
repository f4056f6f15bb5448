// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by camera and file spans.
const (
	RunIDKey   = "camfetch.run_id"
	ModeKey    = "camfetch.mode"
	CameraKey  = "camera.name"
	AddressKey = "camera.address"
	ChannelKey = "camera.channel"

	FileNameKey    = "file.name"
	FileStartKey   = "file.start"
	FileEndKey     = "file.end"
	FileOutcomeKey = "file.outcome"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// CameraAttributes returns the attributes of a camera task span.
func CameraAttributes(runID, mode, camera, address string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(CameraKey, camera),
		attribute.String(ModeKey, mode),
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(RunIDKey, runID))
	}
	if address != "" {
		attrs = append(attrs, attribute.String(AddressKey, address))
	}
	return attrs
}

// FileAttributes returns the attributes of a file transfer span.
func FileAttributes(camera string, channel int, name string, start, end int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CameraKey, camera),
		attribute.Int(ChannelKey, channel),
		attribute.String(FileNameKey, name),
		attribute.Int64(FileStartKey, start),
		attribute.Int64(FileEndKey, end),
	}
}

// ErrorAttributes marks a span as failed with a short error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
