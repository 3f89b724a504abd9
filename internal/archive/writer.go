package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/ZebulonRouseFrantzich/sfx/internal/logging"
)

// DefaultProgressEvery is how many files are added between progress log
// entries.
const DefaultProgressEvery = 100

// SkipFunc reports whether the entry at rel (slash separated, relative to the
// tree root) should be left out. Returning true for a directory skips the
// whole subtree.
type SkipFunc func(rel string, d fs.DirEntry) bool

// WriterOptions configures a Writer.
type WriterOptions struct {
	Logger        logging.Logger
	ProgressEvery int
}

// Writer builds a deflate-compressed ZIP archive.
type Writer struct {
	zw            *zip.Writer
	logger        logging.Logger
	progressEvery int
	files         int
	dirs          int
}

// NewWriter returns a Writer that writes the archive to w.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	every := opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}

	return &Writer{
		zw:            zw,
		logger:        logging.OrNop(opts.Logger),
		progressEvery: every,
	}
}

// AddFile stores the regular file src under name.
func (w *Writer) AddFile(src, name string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}
	return w.addFile(src, name, info)
}

// AddTree stores every file and directory below root under prefix.
// Symbolic links to files are stored as the files they point to; links to
// directories are skipped.
func (w *Writer) AddTree(root, prefix string, skip SkipFunc) error {
	root = filepath.Clean(root)

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", p, walkErr)
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)

		if skip != nil && skip(rel, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := path.Join(prefix, rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", p, err)
			}
			return w.addDir(name, info)
		}

		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		switch {
		case info.Mode().IsRegular():
			return w.addFile(p, name, info)
		case info.IsDir():
			w.logger.Warn("Skipping linked directory", "path", p)
			return nil
		default:
			w.logger.Warn("Skipping special file", "path", p, "mode", info.Mode().String())
			return nil
		}
	})
}

func (w *Writer) addDir(name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", name, err)
	}
	hdr.Name = strings.TrimSuffix(name, "/") + "/"
	hdr.Method = zip.Store

	if _, err := w.zw.CreateHeader(hdr); err != nil {
		return fmt.Errorf("add directory %s: %w", name, err)
	}
	w.dirs++
	return nil
}

func (w *Writer) addFile(src, name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", src, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("compress %s: %w", src, err)
	}

	w.files++
	if w.files%w.progressEvery == 0 {
		w.logger.Info("Adding files to payload", "files", w.files)
	}
	return nil
}

// Files returns the number of regular files written so far.
func (w *Writer) Files() int {
	return w.files
}

// Dirs returns the number of directory entries written so far.
func (w *Writer) Dirs() int {
	return w.dirs
}

// Close writes the central directory. It does not close the underlying
// writer.
func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}
