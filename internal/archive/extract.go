// Package archive writes and extracts the payload archive: a deflate ZIP
// whose entries keep their Unix permission bits.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// CorruptError reports an archive that cannot be read.
type CorruptError struct {
	// Path is the archive file.
	Path string

	// Entry is the member being read when the damage was found, if any.
	Entry string

	Err error
}

func (e *CorruptError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("corrupt archive %s (entry %s): %v", e.Path, e.Entry, e.Err)
	}
	return fmt.Sprintf("corrupt archive %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Stats summarizes an extraction.
type Stats struct {
	Files int
	Dirs  int
	Bytes int64
}

// Extract unpacks the archive at archivePath into destDir, creating it if
// needed. Entries that would land outside destDir are rejected. Cancelling
// ctx stops the extraction between entries.
func Extract(ctx context.Context, archivePath, destDir string) (Stats, error) {
	var stats Stats

	zr, err := openReader(archivePath)
	if err != nil {
		return stats, err
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return stats, fmt.Errorf("create dest dir: %w", err)
	}
	base := filepath.Clean(destDir) + string(os.PathSeparator)

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		target, err := entryPath(base, f.Name)
		if err != nil {
			return stats, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return stats, fmt.Errorf("create directory %s: %w", target, err)
			}
			stats.Dirs++
			continue
		}

		n, err := extractFile(archivePath, f, target)
		if err != nil {
			return stats, err
		}
		stats.Files++
		stats.Bytes += n
	}

	return stats, nil
}

// openReader opens a ZIP file, reporting unreadable content as a
// *CorruptError and filesystem failures as they are.
func openReader(archivePath string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		return nil, &CorruptError{Path: archivePath, Err: err}
	}
	return zr, nil
}

// entryPath maps an archive name to a path below base.
func entryPath(base, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("illegal file path: %q", name)
	}
	target := filepath.Join(base, filepath.FromSlash(name))
	if !strings.HasPrefix(target+string(os.PathSeparator), base) {
		return "", fmt.Errorf("illegal file path: %q", name)
	}
	return target, nil
}

func extractFile(archivePath string, f *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, &CorruptError{Path: archivePath, Entry: f.Name, Err: err}
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("create file %s: %w", target, err)
	}

	src := &readRecorder{r: rc}
	n, copyErr := io.Copy(out, src)
	closeErr := out.Close()

	if copyErr != nil {
		if src.err != nil {
			return n, &CorruptError{Path: archivePath, Entry: f.Name, Err: src.err}
		}
		return n, fmt.Errorf("write file %s: %w", target, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("close file %s: %w", target, closeErr)
	}

	// OpenFile applies the umask; the archived bits are authoritative.
	if err := os.Chmod(target, mode); err != nil {
		return n, fmt.Errorf("set permissions on %s: %w", target, err)
	}
	if !f.Modified.IsZero() {
		_ = os.Chtimes(target, f.Modified, f.Modified)
	}

	return n, nil
}

// readRecorder remembers the first read error so decompression failures can
// be told apart from write failures.
type readRecorder struct {
	r   io.Reader
	err error
}

func (r *readRecorder) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && r.err == nil {
		r.err = err
	}
	return n, err
}
