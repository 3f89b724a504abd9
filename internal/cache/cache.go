// Package cache decides whether an embedded payload must be extracted again.
//
// The decision compares a content fingerprint of the payload bytes with the
// fingerprint stored in a sidecar file inside the extraction target. The
// sidecar is written last, after the target is complete, so its presence
// means the target holds a full extraction of that payload.
package cache

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
	"github.com/ZebulonRouseFrantzich/sfx/internal/fsutil"
)

// Reason explains an extraction decision.
type Reason string

const (
	ReasonTargetMissing      Reason = "target-missing"
	ReasonTargetEmpty        Reason = "target-empty"
	ReasonSidecarMissing     Reason = "sidecar-missing"
	ReasonFingerprintChanged Reason = "fingerprint-changed"
	ReasonFresh              Reason = "fresh"
)

// Decision is the outcome of Check.
type Decision struct {
	Extract bool
	Reason  Reason

	// Stored is the sidecar fingerprint, empty if there is none.
	Stored string

	// Current is the fingerprint of the running payload.
	Current string
}

// Fingerprint returns the hex BLAKE3 digest of the bytes of the file at path
// from offset to end of file.
func Fingerprint(path string, offset int64) (string, error) {
	h := blake3.New()
	if _, err := fsutil.CopyRange(h, path, offset); err != nil {
		return "", fmt.Errorf("fingerprint payload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintReader returns the hex BLAKE3 digest of everything r yields.
func FingerprintReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("fingerprint payload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SidecarPath returns the location of the fingerprint file for targetDir.
func SidecarPath(targetDir string) string {
	return filepath.Join(targetDir, format.SidecarName)
}

// ReadSidecar returns the stored fingerprint. A missing sidecar yields an
// empty string and no error.
func ReadSidecar(targetDir string) (string, error) {
	data, err := os.ReadFile(SidecarPath(targetDir))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read sidecar: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Check decides whether targetDir must be (re)populated for a payload with
// the given fingerprint.
func Check(targetDir, fingerprint string) (Decision, error) {
	d := Decision{Current: fingerprint}

	info, err := os.Stat(targetDir)
	if errors.Is(err, os.ErrNotExist) {
		d.Extract, d.Reason = true, ReasonTargetMissing
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("stat target: %w", err)
	}
	if !info.IsDir() {
		return d, fmt.Errorf("target %s is not a directory", targetDir)
	}

	empty, err := fsutil.IsEmptyDir(targetDir)
	if err != nil {
		return d, fmt.Errorf("read target: %w", err)
	}
	if empty {
		d.Extract, d.Reason = true, ReasonTargetEmpty
		return d, nil
	}

	stored, err := ReadSidecar(targetDir)
	if err != nil {
		return d, err
	}
	d.Stored = stored

	switch {
	case stored == "":
		d.Extract, d.Reason = true, ReasonSidecarMissing
	case stored != fingerprint:
		d.Extract, d.Reason = true, ReasonFingerprintChanged
	default:
		d.Reason = ReasonFresh
	}
	return d, nil
}

// Invalidate removes the sidecar of targetDir so that its content is no
// longer trusted. Call it before modifying targetDir.
func Invalidate(targetDir string) error {
	err := os.Remove(SidecarPath(targetDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove sidecar: %w", err)
	}
	if err == nil {
		return fsutil.SyncDir(targetDir)
	}
	return nil
}

// Commit records fingerprint as the content of targetDir. It must be the
// final step of an extraction.
func Commit(targetDir, fingerprint string) error {
	if fingerprint == "" {
		return errors.New("commit: empty fingerprint")
	}
	if err := fsutil.WriteFileAtomic(SidecarPath(targetDir), []byte(fingerprint), 0644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}
