package builder

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/sfx/internal/cache"
	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
	"github.com/ZebulonRouseFrantzich/sfx/internal/testutil"
)

// launcherWithMarker mimics a compiled launcher, whose bytes contain the
// marker constant.
const launcherWithMarker = "\x7fELF launcher\x00" + format.Marker + "\x00" + format.MetadataBegin + "\x00tail"

func TestAssembleConcatenation(t *testing.T) {
	dir := t.TempDir()
	launcher := filepath.Join(dir, "sfx-launcher")
	payload := filepath.Join(dir, "payload.zip")
	output := filepath.Join(dir, "out", "assistant")

	testutil.WriteFile(t, launcher, launcherWithMarker, 0755)
	payloadData := []byte("PK\x03\x04 not really a zip but bytes are bytes")
	testutil.WriteFile(t, payload, string(payloadData), 0644)

	meta := &format.Metadata{
		App:                "Demo",
		Tool:               "rcc",
		BuiltAt:            time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		PayloadFingerprint: "abc",
		PayloadSize:        int64(len(payloadData)),
	}

	res, err := Assemble(output, launcher, meta, payload)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}

	if res.OutputSize != int64(len(data)) {
		t.Errorf("OutputSize = %d, file is %d bytes", res.OutputSize, len(data))
	}
	if res.OutputSize != res.LauncherSize+res.SeparatorSize+res.MarkerSize+res.PayloadSize {
		t.Errorf("size invariant broken: %+v", res)
	}
	if res.PayloadSize != int64(len(payloadData)) {
		t.Errorf("PayloadSize = %d", res.PayloadSize)
	}
	if !bytes.HasPrefix(data, []byte(launcherWithMarker)) {
		t.Error("output does not start with the launcher bytes")
	}
	if !bytes.Equal(data[res.PayloadOffset:], payloadData) {
		t.Error("payload bytes differ after the offset")
	}

	sum := sha256.Sum256(data)
	if res.OutputSHA256 != hex.EncodeToString(sum[:]) {
		t.Error("OutputSHA256 does not match the file")
	}

	block, _ := format.EncodeMetadata(meta)
	sepStart := res.LauncherSize
	if !bytes.Equal(data[int64(len(launcherWithMarker)):sepStart], block) {
		t.Error("metadata block is not directly after the launcher bytes")
	}
	if string(data[sepStart:sepStart+res.SeparatorSize]) != format.Separator {
		t.Error("separator missing")
	}

	info, err := os.Stat(output)
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != OutputPermissions {
		t.Errorf("mode = %v, want %v", info.Mode().Perm(), os.FileMode(OutputPermissions))
	}
	if _, err := os.Stat(output + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary output left behind")
	}
}

func TestAssembleRoundTripsThroughLauncherFormat(t *testing.T) {
	dir := t.TempDir()
	launcher := filepath.Join(dir, "sfx-launcher")
	payload := filepath.Join(dir, "payload.zip")
	output := filepath.Join(dir, "assistant")

	testutil.WriteFile(t, launcher, launcherWithMarker, 0755)
	testutil.WriteFile(t, payload, "payload bytes", 0644)

	fp, err := cache.Fingerprint(payload, 0)
	if err != nil {
		t.Fatal(err)
	}
	meta := &format.Metadata{App: "Demo", Tool: "rcc", PayloadFingerprint: fp}

	res, err := Assemble(output, launcher, meta, payload)
	if err != nil {
		t.Fatal(err)
	}

	offset, err := format.FindPayloadOffset(output)
	if err != nil {
		t.Fatalf("FindPayloadOffset failed: %v", err)
	}
	if offset != res.PayloadOffset {
		t.Errorf("marker resolves to %d, assembled payload at %d", offset, res.PayloadOffset)
	}

	got, err := format.ReadMetadata(output, format.MarkerStart(offset))
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if got.App != "Demo" || got.Tool != "rcc" {
		t.Errorf("metadata = %+v", got)
	}

	current, err := cache.Fingerprint(output, offset)
	if err != nil {
		t.Fatal(err)
	}
	if current != got.PayloadFingerprint {
		t.Error("embedded fingerprint differs from the launcher's computation")
	}
}

func TestAssembleWithoutMetadata(t *testing.T) {
	dir := t.TempDir()
	launcher := filepath.Join(dir, "sfx-launcher")
	payload := filepath.Join(dir, "payload.zip")
	testutil.WriteFile(t, launcher, "launcher", 0755)
	testutil.WriteFile(t, payload, "zip", 0644)

	res, err := Assemble(filepath.Join(dir, "assistant"), launcher, nil, payload)
	if err != nil {
		t.Fatal(err)
	}
	if res.LauncherSize != int64(len("launcher")) {
		t.Errorf("LauncherSize = %d", res.LauncherSize)
	}
}

func TestAssembleMissingPayloadLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	launcher := filepath.Join(dir, "sfx-launcher")
	output := filepath.Join(dir, "assistant")
	testutil.WriteFile(t, launcher, "launcher", 0755)

	if _, err := Assemble(output, launcher, nil, filepath.Join(dir, "missing.zip")); err == nil {
		t.Fatal("expected error for missing payload")
	}
	for _, p := range []string{output, output + ".tmp"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s exists after failed assembly", filepath.Base(p))
		}
	}
}

func TestAssembleRejectsMarkerInPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"inside", "PK\x03\x04 head " + format.Marker + " tail"},
		{"at end", "PK\x03\x04 head " + format.Marker},
		// Completes a marker that starts inside the delimiter itself.
		{"overlapping delimiter", format.Marker[3:] + " rest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			launcher := filepath.Join(dir, "sfx-launcher")
			payload := filepath.Join(dir, "payload.zip")
			output := filepath.Join(dir, "assistant")
			testutil.WriteFile(t, launcher, launcherWithMarker, 0755)
			testutil.WriteFile(t, payload, tt.payload, 0644)

			_, err := Assemble(output, launcher, nil, payload)
			if !errors.Is(err, ErrMarkerInPayload) {
				t.Fatalf("expected ErrMarkerInPayload, got %v", err)
			}
			for _, p := range []string{output, output + ".tmp"} {
				if _, err := os.Stat(p); !os.IsNotExist(err) {
					t.Errorf("%s exists after rejected assembly", filepath.Base(p))
				}
			}
		})
	}
}
