package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v4/disk"
)

// DataRoot returns the per-user directory that holds extraction targets:
// %LOCALAPPDATA% on Windows, $XDG_DATA_HOME or ~/.local/share elsewhere.
func DataRoot() (string, error) {
	return dataRoot(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func dataRoot(goos string, getenv func(string) string, home func() (string, error)) (string, error) {
	if goos == "windows" {
		if dir := getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		h, err := home()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(h, "AppData", "Local"), nil
	}

	if dir := getenv("XDG_DATA_HOME"); dir != "" && filepath.IsAbs(dir) {
		return dir, nil
	}
	h, err := home()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(h, ".local", "share"), nil
}

// FreeSpace returns the bytes available to the current user on the
// filesystem holding path. If path does not exist yet, its nearest existing
// ancestor is measured.
func FreeSpace(ctx context.Context, path string) (uint64, error) {
	dir, err := existingAncestor(path)
	if err != nil {
		return 0, err
	}

	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("disk usage for %s: %w", dir, err)
	}
	return usage.Free, nil
}

func existingAncestor(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing ancestor of %s", path)
		}
		dir = parent
	}
}
