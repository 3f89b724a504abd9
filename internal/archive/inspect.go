package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/zip"
)

// Entry describes one archive member.
type Entry struct {
	Name  string
	Size  uint64
	Mode  fs.FileMode
	IsDir bool
}

// UncompressedSize returns the sum of the uncompressed sizes recorded in the
// archive's central directory.
func UncompressedSize(archivePath string) (uint64, error) {
	zr, err := openReader(archivePath)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	var total uint64
	for _, f := range zr.File {
		total += f.UncompressedSize64
	}
	return total, nil
}

// ListRange lists the archive stored in the file at path from offset to end
// of file, without copying it out first.
func ListRange(path string, offset int64) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if offset < 0 || offset > info.Size() {
		return nil, fmt.Errorf("offset %d outside %s (%d bytes)", offset, path, info.Size())
	}

	size := info.Size() - offset
	zr, err := zip.NewReader(io.NewSectionReader(f, offset, size), size)
	if err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, zf := range zr.File {
		entries = append(entries, Entry{
			Name:  zf.Name,
			Size:  zf.UncompressedSize64,
			Mode:  zf.Mode(),
			IsDir: zf.FileInfo().IsDir(),
		})
	}
	return entries, nil
}
