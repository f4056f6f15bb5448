// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package deviceapi defines the boundary to the cloud-brokered camera API.
//
// Sessions form a tree: a Client yields a Root session for the cloud
// account, the Root yields per-camera Device sessions, and a Device yields
// Transfer handles for individual recordings. Every session must be logged
// out exactly once by its owner.
package deviceapi

import (
	"context"
)

// DeviceInfo describes a camera registered with the cloud account.
type DeviceInfo struct {
	ID      string
	Name    string
	Address string
}

// Channel is a camera-local video source.
type Channel struct {
	ID     int
	Online bool
}

// FileInfo is a recording segment as reported by the device. Start and End
// are epoch seconds with End > Start.
type FileInfo struct {
	Name  string
	Start int64
	End   int64
}

// Client opens root sessions against a cloud broker.
type Client interface {
	Login(ctx context.Context, serverURL, username, password string) (Root, error)
}

// Root is an authenticated cloud account session.
type Root interface {
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
	LoginDevice(ctx context.Context, dev DeviceInfo) (Device, error)
	Logout(ctx context.Context) error
}

// Device is an exclusive session with a single camera.
type Device interface {
	ListChannels(ctx context.Context) ([]Channel, error)
	FindFiles(ctx context.Context, channel int, start, end int64) ([]FileInfo, error)
	// OpenTransfer starts writing the recording [start, end) of channel to
	// localPath. On a completed Stop the media is published as localPath+".mp4".
	OpenTransfer(ctx context.Context, channel int, start, end int64, localPath string) (Transfer, error)
	Reboot(ctx context.Context) error
	Logout(ctx context.Context) error
}

// Transfer is an in-progress download of one recording.
type Transfer interface {
	// Position reports the media timestamp (epoch seconds) written so far.
	Position(ctx context.Context) (int64, error)
	Stop(ctx context.Context) error
}

// MediaExt is the extension of a completed transfer.
const MediaExt = ".mp4"
