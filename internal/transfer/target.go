// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transfer

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/camfetch/internal/deviceapi"
	"github.com/ManuGH/camfetch/internal/fsutil"
)

// Target names the on-disk artifacts of one recording.
type Target struct {
	Dir  string
	Base string
	Ext  string
}

// NewTarget derives {dir}/{yyyymmdd}_{start}_{end} from the file's UTC start day.
func NewTarget(dir string, f deviceapi.FileInfo) Target {
	day := time.Unix(f.Start, 0).UTC().Format("20060102")
	return Target{
		Dir:  dir,
		Base: fmt.Sprintf("%s_%d_%d", day, f.Start, f.End),
		Ext:  deviceapi.MediaExt,
	}
}

// Partial is the in-progress path handed to the Device API.
func (t Target) Partial() string {
	return filepath.Join(t.Dir, t.Base)
}

// Final is the path of a completed recording.
func (t Target) Final() string {
	return t.Partial() + t.Ext
}

// Present reports whether either the partial or the final file exists.
func (t Target) Present() (bool, error) {
	return fsutil.AnyExists(t.Partial(), t.Final())
}
