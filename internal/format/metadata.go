package format

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Metadata block fences.
const (
	MetadataBegin = "-----BEGIN SFX METADATA-----"
	MetadataEnd   = "-----END SFX METADATA-----"

	// MaxMetadataSize bounds the encoded block, fences included.
	MaxMetadataSize = 32 * 1024
)

// ErrNoMetadata is returned when the bytes before the marker do not end in a
// metadata block followed by the separator.
var ErrNoMetadata = errors.New("no build metadata")

// Metadata describes one build. The builder attaches it to the launcher bytes;
// the launcher reads it back to learn the application name and tool name.
type Metadata struct {
	App                string    `yaml:"app"`
	Tool               string    `yaml:"tool,omitempty"`
	BuildID            string    `yaml:"build_id,omitempty"`
	BuiltAt            time.Time `yaml:"built_at"`
	ToolSource         string    `yaml:"tool_source,omitempty"`
	ProjectSource      string    `yaml:"project_source,omitempty"`
	EnvSource          string    `yaml:"env_source,omitempty"`
	ProjectRevision    string    `yaml:"project_revision,omitempty"`
	PayloadFingerprint string    `yaml:"payload_fingerprint,omitempty"`
	PayloadSize        int64     `yaml:"payload_size"`
	BuilderHost        string    `yaml:"builder_host,omitempty"`
}

// EncodeMetadata renders m as a fenced block ready to be appended to the
// launcher bytes.
func EncodeMetadata(m *Metadata) ([]byte, error) {
	if m == nil {
		return nil, errors.New("metadata is nil")
	}

	body, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	for _, forbidden := range []string{Marker, MetadataBegin, MetadataEnd} {
		if bytes.Contains(body, []byte(forbidden)) {
			return nil, fmt.Errorf("metadata must not contain %q", forbidden)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("\n" + MetadataBegin + "\n")
	buf.Write(body)
	buf.WriteString(MetadataEnd + "\n")

	if buf.Len() > MaxMetadataSize {
		return nil, fmt.Errorf("metadata block is %d bytes, limit is %d", buf.Len(), MaxMetadataSize)
	}

	return buf.Bytes(), nil
}

// DecodeMetadata parses the metadata block from prefix, which must be the
// bytes immediately preceding the marker.
func DecodeMetadata(prefix []byte) (*Metadata, error) {
	if !bytes.HasSuffix(prefix, []byte(Separator)) {
		return nil, ErrNoMetadata
	}
	prefix = prefix[:len(prefix)-len(Separator)]

	tail := []byte(MetadataEnd + "\n")
	if !bytes.HasSuffix(prefix, tail) {
		return nil, ErrNoMetadata
	}
	prefix = prefix[:len(prefix)-len(tail)]

	// The launcher's own bytes contain the fence constants too; the block
	// that belongs to this build is the last one.
	head := []byte(MetadataBegin + "\n")
	i := bytes.LastIndex(prefix, head)
	if i < 0 {
		return nil, ErrNoMetadata
	}

	var m Metadata
	if err := yaml.Unmarshal(prefix[i+len(head):], &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	return &m, nil
}

// ReadMetadata reads the metadata block of the file at path. markerStart is
// the offset at which the marker begins.
func ReadMetadata(path string, markerStart int64) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	start := markerStart - int64(MaxMetadataSize+len(Separator))
	if start < 0 {
		start = 0
	}

	prefix := make([]byte, markerStart-start)
	if _, err := f.ReadAt(prefix, start); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read metadata window: %w", err)
	}

	return DecodeMetadata(prefix)
}

// MarkerStart converts a payload offset back to the offset of the marker.
func MarkerStart(payloadOffset int64) int64 {
	return payloadOffset - int64(len(Marker))
}
