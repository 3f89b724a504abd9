package format

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Marker delimits the launcher from the payload archive. It is the only
// definition of the marker; the builder and the launcher both use it.
const Marker = "===RCC_PAYLOAD_START==="

// Separator is the human-readable text written between the launcher and the
// marker.
const Separator = "\n# ======================================================================\n" +
	"# EMBEDDED PAYLOAD - DO NOT EDIT BELOW THIS LINE\n" +
	"# ======================================================================\n"

// scanChunkSize is how many bytes LastIndex reads per step.
const scanChunkSize = 64 * 1024

// ErrMarkerNotFound is returned when a file carries no payload marker. This
// is the expected result for a launcher that was never passed through the
// builder.
var ErrMarkerNotFound = errors.New("payload marker not found")

// FindPayloadOffset returns the byte offset immediately following the last
// occurrence of Marker in the file at path.
func FindPayloadOffset(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	start, err := LastIndex(f, info.Size(), []byte(Marker))
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", path, err)
	}
	if start < 0 {
		return 0, fmt.Errorf("%w: %s", ErrMarkerNotFound, path)
	}

	return start + int64(len(Marker)), nil
}

// LastIndex returns the offset of the last occurrence of pattern in the first
// size bytes of r, or -1 if it does not occur. The input is scanned backwards
// in fixed-size chunks, so memory use does not depend on size.
func LastIndex(r io.ReaderAt, size int64, pattern []byte) (int64, error) {
	return lastIndex(r, size, pattern, scanChunkSize)
}

func lastIndex(r io.ReaderAt, size int64, pattern []byte, chunkSize int) (int64, error) {
	if len(pattern) == 0 {
		return -1, errors.New("empty search pattern")
	}
	if chunkSize <= 0 {
		return -1, fmt.Errorf("invalid chunk size %d", chunkSize)
	}

	// Each window is extended by len(pattern)-1 bytes past its end so a match
	// straddling two windows is still seen whole.
	overlap := int64(len(pattern) - 1)
	buf := make([]byte, int64(chunkSize)+overlap)

	end := size
	for end > 0 {
		start := end - int64(chunkSize)
		if start < 0 {
			start = 0
		}
		readEnd := end + overlap
		if readEnd > size {
			readEnd = size
		}

		window := buf[:readEnd-start]
		if _, err := r.ReadAt(window, start); err != nil && !errors.Is(err, io.EOF) {
			return -1, fmt.Errorf("read at %d: %w", start, err)
		}

		if i := bytes.LastIndex(window, pattern); i >= 0 {
			return start + int64(i), nil
		}

		end = start
	}

	return -1, nil
}
