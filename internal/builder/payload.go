package builder

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/sfx/internal/archive"
	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
	"github.com/ZebulonRouseFrantzich/sfx/internal/logging"
)

// PayloadStats counts what went into a payload.
type PayloadStats struct {
	Files int
	Dirs  int
}

// BuildPayload writes the payload archive for opts to w: the tool at the
// root under its base name, the env tree under format.EnvArchiveDir and the
// project tree under format.ProjectArchiveDir.
func BuildPayload(ctx context.Context, w io.Writer, opts Options, logger logging.Logger) (PayloadStats, error) {
	logger = logging.OrNop(logger)
	zw := archive.NewWriter(w, archive.WriterOptions{Logger: logger})

	if err := ctx.Err(); err != nil {
		return PayloadStats{}, fmt.Errorf("context cancelled: %w", err)
	}
	toolName := filepath.Base(opts.Tool)
	logger.Info("Adding tool", "path", opts.Tool, "name", toolName)
	if err := zw.AddFile(opts.Tool, toolName); err != nil {
		return PayloadStats{}, fmt.Errorf("add tool: %w", err)
	}

	if opts.Env != "" {
		if err := ctx.Err(); err != nil {
			return PayloadStats{}, fmt.Errorf("context cancelled: %w", err)
		}
		logger.Info("Adding environment", "path", opts.Env)
		if err := zw.AddTree(opts.Env, format.EnvArchiveDir, nil); err != nil {
			return PayloadStats{}, fmt.Errorf("add environment: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return PayloadStats{}, fmt.Errorf("context cancelled: %w", err)
	}
	logger.Info("Adding project", "path", opts.Project)
	if err := zw.AddTree(opts.Project, format.ProjectArchiveDir, SkipProjectEntry); err != nil {
		return PayloadStats{}, fmt.Errorf("add project: %w", err)
	}

	if err := zw.Close(); err != nil {
		return PayloadStats{}, err
	}

	stats := PayloadStats{Files: zw.Files(), Dirs: zw.Dirs()}
	logger.Info("Payload built", "files", stats.Files, "dirs", stats.Dirs)
	return stats, nil
}

// SkipProjectEntry leaves out hidden entries and Python bytecode caches.
func SkipProjectEntry(rel string, d fs.DirEntry) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") || part == "__pycache__" {
			return true
		}
	}
	return false
}
