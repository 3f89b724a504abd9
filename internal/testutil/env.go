// Package testutil provides utilities for testing sfx in isolation.
package testutil

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Env describes the isolated directories created by SetupTestEnv.
type Env struct {
	Root     string
	Home     string
	DataRoot string
}

// SetupTestEnv points every location sfx reads or writes at a fresh temporary
// directory and clears the SFX_* overrides, so tests never touch the user's
// real data root or inherit settings from the developer's shell.
func SetupTestEnv(t *testing.T) Env {
	t.Helper()

	root := t.TempDir()
	env := Env{
		Root:     root,
		Home:     filepath.Join(root, "home"),
		DataRoot: filepath.Join(root, "data"),
	}

	for _, dir := range []string{env.Home, env.DataRoot} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	t.Setenv("HOME", env.Home)
	t.Setenv("USERPROFILE", env.Home)
	t.Setenv("XDG_DATA_HOME", env.DataRoot)
	t.Setenv("LOCALAPPDATA", env.DataRoot)
	t.Setenv("SFX_DATA_ROOT", env.DataRoot)

	for _, key := range []string{
		"SFX_APP_NAME",
		"SFX_EXECUTABLE",
		"SFX_KEEP_FAILED_STAGING",
		"SFX_LOG_LEVEL",
		"SFX_LAUNCHER",
		"SFX_TEMP_DIR",
		"ROBOCORP_HOME",
	} {
		Unsetenv(t, key)
	}

	return env
}

// Unsetenv removes key for the duration of the test.
func Unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// FakeToolScript is a POSIX shell stand-in for the wrapped tool. It records
// its arguments, working directory and ROBOCORP_HOME into the file named by
// $SFX_FAKE_TOOL_RECORD and exits with $SFX_FAKE_TOOL_EXIT (default 0).
const FakeToolScript = `#!/bin/sh
if [ -n "$SFX_FAKE_TOOL_RECORD" ]; then
  {
    echo "args=$*"
    echo "cwd=$(pwd -P)"
    echo "home=${ROBOCORP_HOME-<unset>}"
  } >> "$SFX_FAKE_TOOL_RECORD"
fi
exit ${SFX_FAKE_TOOL_EXIT:-0}
`

// RequireShell skips the test on systems that cannot run FakeToolScript.
func RequireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool is a POSIX shell script")
	}
}

// ReadToolRecords parses the file written by FakeToolScript. Each run
// yields one map.
func ReadToolRecords(t *testing.T, path string) []map[string]string {
	t.Helper()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("open tool record: %v", err)
	}
	defer f.Close()

	var runs []map[string]string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		if key == "args" {
			runs = append(runs, map[string]string{})
		}
		if len(runs) > 0 {
			runs[len(runs)-1][key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read tool record: %v", err)
	}
	return runs
}
