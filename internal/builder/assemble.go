package builder

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
)

// OutputPermissions is the mode of a built file.
const OutputPermissions = 0755

// ErrMarkerInPayload is returned when the payload bytes contain
// format.Marker. The launcher resolves the last marker in its file, so such
// a payload would be cut at the wrong offset.
var ErrMarkerInPayload = errors.New("payload contains the payload marker")

// Result describes a built file.
type Result struct {
	Output string

	// LauncherSize includes the metadata block.
	LauncherSize  int64
	SeparatorSize int64
	MarkerSize    int64
	PayloadSize   int64

	// PayloadOffset is where the payload starts in Output.
	PayloadOffset int64

	OutputSize   int64
	OutputSHA256 string

	PayloadFingerprint string
	Metadata           *format.Metadata
}

// Assemble writes launcher bytes, the metadata block, the separator, the
// marker and the payload to output as one binary stream. The file is written
// beside output and renamed into place, so output is either the complete
// new file or untouched.
func Assemble(output, launcher string, meta *format.Metadata, payload string) (*Result, error) {
	if err := checkPayload(payload); err != nil {
		return nil, err
	}

	var block []byte
	if meta != nil {
		var err error
		if block, err = format.EncodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	tmp := output + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, OutputPermissions)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", tmp, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	h := sha256.New()
	bw := bufio.NewWriter(io.MultiWriter(f, h))

	res := &Result{
		Output:        output,
		SeparatorSize: int64(len(format.Separator)),
		MarkerSize:    int64(len(format.Marker)),
		Metadata:      meta,
	}
	if meta != nil {
		res.PayloadFingerprint = meta.PayloadFingerprint
	}

	n, err := copyFile(bw, launcher)
	if err != nil {
		return nil, fmt.Errorf("write launcher: %w", err)
	}
	if _, err := bw.Write(block); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	res.LauncherSize = n + int64(len(block))

	if _, err := bw.WriteString(format.Separator); err != nil {
		return nil, fmt.Errorf("write separator: %w", err)
	}
	if _, err := bw.WriteString(format.Marker); err != nil {
		return nil, fmt.Errorf("write marker: %w", err)
	}
	res.PayloadOffset = res.LauncherSize + res.SeparatorSize + res.MarkerSize

	if res.PayloadSize, err = copyFile(bw, payload); err != nil {
		return nil, fmt.Errorf("write payload: %w", err)
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flush %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", tmp, err)
	}
	// Chmod again: the create mode is subject to umask.
	if err := os.Chmod(tmp, OutputPermissions); err != nil {
		return nil, fmt.Errorf("chmod %s: %w", tmp, err)
	}

	info, err := os.Stat(tmp)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", tmp, err)
	}
	res.OutputSize = info.Size()
	if want := res.LauncherSize + res.SeparatorSize + res.MarkerSize + res.PayloadSize; res.OutputSize != want {
		return nil, fmt.Errorf("output is %d bytes, expected %d", res.OutputSize, want)
	}
	res.OutputSHA256 = hex.EncodeToString(h.Sum(nil))

	offset, err := format.FindPayloadOffset(tmp)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", tmp, err)
	}
	if offset != res.PayloadOffset {
		return nil, fmt.Errorf("%w: marker resolves to offset %d, payload written at %d", ErrMarkerInPayload, offset, res.PayloadOffset)
	}

	if err := os.Rename(tmp, output); err != nil {
		return nil, fmt.Errorf("rename %s: %w", tmp, err)
	}
	committed = true

	return res, nil
}

// checkPayload fails when the payload file contains format.Marker.
func checkPayload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat payload: %w", err)
	}
	i, err := format.LastIndex(f, info.Size(), []byte(format.Marker))
	if err != nil {
		return fmt.Errorf("scan payload: %w", err)
	}
	if i >= 0 {
		return fmt.Errorf("%w at payload byte %d; a file name or file content in the inputs holds %q",
			ErrMarkerInPayload, i, format.Marker)
	}
	return nil
}

func copyFile(dst io.Writer, src string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(dst, f)
}
