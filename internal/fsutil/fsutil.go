// Package fsutil provides the small crash-safety primitives the launcher and
// builder share: atomic file replacement and whole-directory swaps.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path using the write-then-rename pattern.
// Readers observe either the previous content or the complete new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temporary file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temporary file: %w", err)
	}

	return SyncDir(dir)
}

// SyncDir fsyncs a directory so a preceding rename survives a crash. Systems
// that cannot open directories for syncing are tolerated.
func SyncDir(dir string) error {
	df, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer df.Close()

	if err := df.Sync(); err != nil && !isSyncUnsupported(err) {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}

// ReplaceDir moves staging into place at target, discarding whatever target
// held before. The two directories must be on the same filesystem.
//
// The previous target is renamed aside before staging is renamed in, so
// target is never a partially deleted tree: it holds the old content, is
// absent, or holds the new content.
func ReplaceDir(staging, target string) error {
	old := AsidePath(target)
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("remove stale %s: %w", old, err)
	}
	if err := os.Rename(target, old); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("move previous %s aside: %w", target, err)
	}
	if err := os.Rename(staging, target); err != nil {
		_ = os.Rename(old, target)
		return fmt.Errorf("move %s into place: %w", staging, err)
	}
	if err := SyncDir(filepath.Dir(target)); err != nil {
		return err
	}
	// A leftover is removed by the next replace.
	_ = os.RemoveAll(old)
	return nil
}

// AsidePath is where ReplaceDir parks the previous content of target.
func AsidePath(target string) string {
	return filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".old")
}

// CopyRange copies the bytes of src from offset to end of file into dst and
// returns how many bytes were copied.
func CopyRange(dst io.Writer, src string, offset int64) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek %s to %d: %w", src, offset, err)
	}

	n, err := io.Copy(dst, f)
	if err != nil {
		return n, fmt.Errorf("copy %s from offset %d: %w", src, offset, err)
	}
	return n, nil
}

// IsEmptyDir reports whether dir exists and has no entries.
func IsEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	names, err := f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(names) == 0, nil
}
