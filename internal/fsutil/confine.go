// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil holds the output tree helpers used by the transfer engine.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path would resolve outside its root.
var ErrEscapesRoot = errors.New("fsutil: path escapes root")

// ConfineRelPath joins root and rel and ensures the result, after symlink
// resolution, stays underneath root. rel must be relative. root must exist.
func ConfineRelPath(root, rel string) (string, error) {
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("%w: backslash in %q", ErrEscapesRoot, rel)
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: %q is absolute", ErrEscapesRoot, rel)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("fsutil: resolve root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", err
	}
	return resolveWithin(realRoot, filepath.Join(realRoot, clean))
}

// resolveWithin resolves symlinks of full (or of its parent when full does
// not exist yet) and checks the result against realRoot.
func resolveWithin(realRoot, full string) (string, error) {
	var real string
	if _, err := os.Lstat(full); err == nil {
		rp, err := filepath.EvalSymlinks(full)
		if err != nil {
			return "", fmt.Errorf("fsutil: resolve %s: %w", full, err)
		}
		real = rp
	} else {
		dir := filepath.Dir(full)
		rp, err := filepath.EvalSymlinks(dir)
		switch {
		case err == nil:
			real = filepath.Join(rp, filepath.Base(full))
		case errors.Is(err, os.ErrNotExist):
			real = full
		default:
			return "", fmt.Errorf("fsutil: resolve parent %s: %w", dir, err)
		}
	}

	rel, err := filepath.Rel(realRoot, real)
	if err != nil {
		return "", fmt.Errorf("fsutil: rel: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, real)
	}
	return real, nil
}

// AnyExists reports whether at least one of paths exists. Stat errors other
// than not-exist are returned with the offending path.
func AnyExists(paths ...string) (bool, error) {
	for _, p := range paths {
		_, err := os.Stat(p)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("fsutil: stat %s: %w", p, err)
		}
	}
	return false, nil
}

// RemoveIfExists deletes path and treats a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
