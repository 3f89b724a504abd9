package launcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ZebulonRouseFrantzich/sfx/internal/archive"
	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
	"github.com/ZebulonRouseFrantzich/sfx/internal/runner"
	"github.com/ZebulonRouseFrantzich/sfx/internal/testutil"
)

// fakeLauncherBytes stands in for a compiled launcher. Like the real one it
// contains the marker constant in its own bytes.
var fakeLauncherBytes = []byte("\x7fELF fake launcher\x00" + format.Marker + "\x00rodata\x00")

type payloadFile struct {
	content string
	mode    os.FileMode
}

func defaultPayload() map[string]payloadFile {
	return map[string]payloadFile{
		"rcc":                   {testutil.FakeToolScript, 0o755},
		"robot/robot.yaml":      {"tasks:\n  Main:\n    shell: python main.py\n", 0o644},
		"robot/main.py":         {"print('hello')\n", 0o644},
		".rcc_home/settings.db": {"settings", 0o644},
	}
}

// payloadBytes builds a ZIP archive holding files.
func payloadBytes(t *testing.T, files map[string]payloadFile) []byte {
	t.Helper()

	src := t.TempDir()
	for name, f := range files {
		testutil.WriteFile(t, filepath.Join(src, filepath.FromSlash(name)), f.content, f.mode)
	}

	var buf bytes.Buffer
	w := archive.NewWriter(&buf, archive.WriterOptions{})
	if err := w.AddTree(src, "", nil); err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// writeSelfExtracting writes launcher bytes, optional metadata, separator,
// marker and payload to path.
func writeSelfExtracting(t *testing.T, path string, meta *format.Metadata, payload []byte) string {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(fakeLauncherBytes)
	if meta != nil {
		block, err := format.EncodeMetadata(meta)
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(block)
	}
	buf.WriteString(format.Separator)
	buf.WriteString(format.Marker)
	buf.Write(payload)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeRunner struct {
	code  int
	err   error
	calls []runner.Invocation
}

func (f *fakeRunner) Run(ctx context.Context, inv runner.Invocation) (int, error) {
	f.calls = append(f.calls, inv)
	return f.code, f.err
}

// memLogger records messages for assertions.
type memLogger struct {
	mu      sync.Mutex
	entries []string
}

func (m *memLogger) log(level, msg string, kv []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, fmt.Sprintf("%s %s %v", level, msg, kv))
}

func (m *memLogger) Debug(msg string, kv ...interface{}) { m.log("DEBUG", msg, kv) }
func (m *memLogger) Info(msg string, kv ...interface{})  { m.log("INFO", msg, kv) }
func (m *memLogger) Warn(msg string, kv ...interface{})  { m.log("WARN", msg, kv) }
func (m *memLogger) Error(msg string, kv ...interface{}) { m.log("ERROR", msg, kv) }

func (m *memLogger) count(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if strings.Contains(e, substr) {
			n++
		}
	}
	return n
}

func plentyOfSpace(context.Context, string) (uint64, error) {
	return 1 << 40, nil
}
