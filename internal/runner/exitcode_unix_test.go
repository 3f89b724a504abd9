//go:build !windows

package runner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ZebulonRouseFrantzich/sfx/internal/testutil"
)

func TestRunSignalledChild(t *testing.T) {
	testutil.RequireShell(t)
	root := t.TempDir()
	tool := filepath.Join(root, "rcc")
	testutil.WriteFile(t, tool, "#!/bin/sh\nkill -TERM $$\n", 0o755)
	testutil.WriteFile(t, filepath.Join(root, "robot.yaml"), "", 0o644)

	code, err := New(Options{}).Run(context.Background(), Invocation{
		Tool:       tool,
		Descriptor: filepath.Join(root, "robot.yaml"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if code != 128+15 {
		t.Errorf("exit code = %d, want %d", code, 128+15)
	}
}
