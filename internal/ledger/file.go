// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/renameio/v2"

	xglog "github.com/ManuGH/camfetch/internal/log"
)

// File is a text ledger with one camera name per line. Every change
// rewrites the whole file atomically.
type File struct {
	path string
	mu   sync.Mutex
}

var _ Ledger = (*File)(nil)

// NewFile returns a ledger stored at path. The file is created lazily.
func NewFile(path string) *File {
	return &File{path: filepath.Clean(path)}
}

// Path returns the ledger location.
func (f *File) Path() string { return f.path }

func (f *File) Add(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	names, err := f.read()
	if err != nil {
		return err
	}
	if slices.Contains(names, name) {
		return nil
	}
	return f.write(ctx, append(names, name))
}

func (f *File) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	names, err := f.read()
	if err != nil {
		return err
	}
	idx := slices.Index(names, name)
	if idx < 0 {
		return nil
	}
	return f.write(ctx, slices.Delete(names, idx, idx+1))
}

func (f *File) List(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// read returns trimmed, non-empty, de-duplicated lines. A missing file is empty.
func (f *File) read() ([]string, error) {
	// #nosec G304 -- ledger path is operator-provided configuration
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || slices.Contains(names, line) {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return names, nil
}

func (f *File) write(ctx context.Context, names []string) error {
	logger := xglog.FromContext(ctx)

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	pendingFile, err := renameio.NewPendingFile(f.path, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending ledger file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending ledger file")
		}
	}()

	w := bufio.NewWriter(pendingFile)
	for _, n := range names {
		if _, err := w.WriteString(n + "\n"); err != nil {
			return fmt.Errorf("write ledger: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace ledger: %w", err)
	}
	return nil
}
