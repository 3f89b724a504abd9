package archive

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func buildArchive(t *testing.T, fn func(w *Writer)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := NewWriter(f, WriterOptions{})
	fn(w)
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTree(t, filepath.Join(src, "project"), map[string]string{
		"robot.yaml":         "tasks: {}\n",
		"tasks/main.py":      "print('hi')\n",
		".git/HEAD":          "ref: refs/heads/main\n",
		"__pycache__/x.pyc":  "bytecode",
		"deep/a/b/c/d.txt":   strings.Repeat("d", 10000),
		"tasks/.hidden.conf": "secret",
	})
	if err := os.MkdirAll(filepath.Join(src, "project", "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	tool := filepath.Join(src, "rcc")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	skipHidden := func(rel string, d fs.DirEntry) bool {
		base := d.Name()
		return strings.HasPrefix(base, ".") || (d.IsDir() && base == "__pycache__")
	}

	var files int
	archivePath := buildArchive(t, func(w *Writer) {
		if err := w.AddFile(tool, "rcc"); err != nil {
			t.Fatal(err)
		}
		if err := w.AddTree(filepath.Join(src, "project"), "robot", skipHidden); err != nil {
			t.Fatal(err)
		}
		files = w.Files()
	})

	if files != 4 {
		t.Errorf("Files() = %d, want 4", files)
	}

	dest := filepath.Join(t.TempDir(), "out")
	stats, err := Extract(context.Background(), archivePath, dest)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if stats.Files != 4 {
		t.Errorf("extracted %d files, want 4", stats.Files)
	}

	for name, want := range map[string]string{
		"rcc":                    "#!/bin/sh\n",
		"robot/robot.yaml":       "tasks: {}\n",
		"robot/tasks/main.py":    "print('hi')\n",
		"robot/deep/a/b/c/d.txt": strings.Repeat("d", 10000),
	} {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		if err != nil {
			t.Errorf("read %s: %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s content mismatch", name)
		}
	}

	for _, absent := range []string{"robot/.git", "robot/__pycache__", "robot/tasks/.hidden.conf"} {
		if _, err := os.Stat(filepath.Join(dest, filepath.FromSlash(absent))); !os.IsNotExist(err) {
			t.Errorf("%s should have been skipped", absent)
		}
	}

	if info, err := os.Stat(filepath.Join(dest, "robot", "empty")); err != nil || !info.IsDir() {
		t.Errorf("empty directory not preserved: %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dest, "rcc"))
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm()&0111 == 0 {
			t.Errorf("executable bit lost: %v", info.Mode())
		}
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	names := []string{"../evil.txt", "robot/../../evil.txt", "/abs/evil.txt"}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			zw := zip.NewWriter(&buf)
			w, err := zw.Create(name)
			if err != nil {
				t.Fatal(err)
			}
			w.Write([]byte("x"))
			if err := zw.Close(); err != nil {
				t.Fatal(err)
			}

			archivePath := filepath.Join(t.TempDir(), "evil.zip")
			if err := os.WriteFile(archivePath, buf.Bytes(), 0644); err != nil {
				t.Fatal(err)
			}

			parent := t.TempDir()
			dest := filepath.Join(parent, "out")
			_, err = Extract(context.Background(), archivePath, dest)
			if err == nil {
				t.Fatal("expected an error for an escaping entry")
			}
			if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !os.IsNotExist(err) {
				t.Error("file escaped the destination directory")
			}
		})
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "broken.zip")
	if err := os.WriteFile(archivePath, []byte("this is not a zip archive"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Extract(context.Background(), archivePath, filepath.Join(t.TempDir(), "out"))

	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected *CorruptError, got %T: %v", err, err)
	}
	if corrupt.Path != archivePath {
		t.Errorf("CorruptError.Path = %q, want %q", corrupt.Path, archivePath)
	}
}

func TestExtractCorruptEntry(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"big.txt": strings.Repeat("payload data ", 5000)})

	archivePath := buildArchive(t, func(w *Writer) {
		if err := w.AddFile(filepath.Join(src, "big.txt"), "big.txt"); err != nil {
			t.Fatal(err)
		}
	})

	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	// Damage the compressed stream while keeping the central directory.
	for i := 60; i < 90; i++ {
		data[i] ^= 0xff
	}
	if err := os.WriteFile(archivePath, data, 0644); err != nil {
		t.Fatal(err)
	}

	_, err = Extract(context.Background(), archivePath, filepath.Join(t.TempDir(), "out"))

	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected *CorruptError, got %T: %v", err, err)
	}
	if corrupt.Entry != "big.txt" {
		t.Errorf("CorruptError.Entry = %q, want big.txt", corrupt.Entry)
	}
}

func TestExtractCancelled(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})
	archivePath := buildArchive(t, func(w *Writer) {
		if err := w.AddTree(src, "robot", nil); err != nil {
			t.Fatal(err)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Extract(ctx, archivePath, filepath.Join(t.TempDir(), "out")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestUncompressedSizeAndListRange(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "aaaa", "b/c.txt": "cccccc"})

	archivePath := buildArchive(t, func(w *Writer) {
		if err := w.AddTree(src, "robot", nil); err != nil {
			t.Fatal(err)
		}
	})

	total, err := UncompressedSize(archivePath)
	if err != nil {
		t.Fatalf("UncompressedSize failed: %v", err)
	}
	if total != 10 {
		t.Errorf("UncompressedSize = %d, want 10", total)
	}

	zipData, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	prefix := []byte("launcher bytes===RCC_PAYLOAD_START===")
	combined := filepath.Join(t.TempDir(), "assistant")
	if err := os.WriteFile(combined, append(prefix, zipData...), 0755); err != nil {
		t.Fatal(err)
	}

	entries, err := ListRange(combined, int64(len(prefix)))
	if err != nil {
		t.Fatalf("ListRange failed: %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	want := []string{"robot/a.txt", "robot/b/", "robot/b/c.txt"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("entries = %v, want %v", names, want)
	}
}
