package launcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/sfx/internal/archive"
	"github.com/ZebulonRouseFrantzich/sfx/internal/cache"
	"github.com/ZebulonRouseFrantzich/sfx/internal/fsutil"
)

// extract replaces the target with the running payload. The sequence is:
// copy the payload to a temporary archive, check free space, unpack into a
// fresh staging directory, swap it in for the target, and record the
// fingerprint. A failure at any step leaves no sidecar for the new payload,
// so the next run extracts again.
func (l *Launcher) extract(ctx context.Context, fingerprint string) error {
	p := l.plan

	if err := os.MkdirAll(p.DataRoot, 0755); err != nil {
		return &Error{Category: CategoryIO, Op: "create data root", Path: p.DataRoot, Err: err}
	}

	tmp, err := os.CreateTemp(p.DataRoot, "."+p.AppName+".payload-*.zip")
	if err != nil {
		return &Error{Category: CategoryIO, Op: "create staging archive", Path: p.DataRoot, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := fsutil.CopyRange(tmp, p.Executable, p.PayloadOffset)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", tmpPath, closeErr)
	}
	if err != nil {
		return &Error{Category: CategoryIO, Op: "copy payload", Path: p.Executable, Offset: p.PayloadOffset, Err: err}
	}
	l.logger.Debug("Payload copied", "path", tmpPath, "bytes", n)

	if err := l.preflight(ctx, tmpPath); err != nil {
		return err
	}

	staging := filepath.Join(p.DataRoot, "."+p.AppName+".staging-"+uuid.NewString())
	committed := false
	defer func() {
		if committed {
			return
		}
		if p.KeepFailedStaging {
			if _, err := os.Stat(staging); err == nil {
				l.logger.Warn("Keeping failed staging directory", "path", staging)
			}
			return
		}
		if err := os.RemoveAll(staging); err != nil {
			l.logger.Warn("Could not remove staging directory", "path", staging, "error", err)
		}
	}()

	l.logger.Info("Extracting payload", "target", p.Target)
	stats, err := archive.Extract(ctx, tmpPath, staging)
	if err != nil {
		return classify("extract payload", staging, err)
	}

	if err := cache.Invalidate(p.Target); err != nil {
		return &Error{Category: CategoryIO, Op: "invalidate target", Path: p.Target, Err: err}
	}
	if err := l.replaceDir(staging, p.Target); err != nil {
		return &Error{Category: CategoryIO, Op: "replace target", Path: p.Target, Err: err}
	}
	committed = true

	if err := cache.Commit(p.Target, fingerprint); err != nil {
		return &Error{Category: CategoryIO, Op: "record fingerprint", Path: p.Target, Err: err}
	}

	l.logger.Info("Extraction complete",
		"files", stats.Files,
		"dirs", stats.Dirs,
		"size", formatBytes(uint64(stats.Bytes)))
	return nil
}

// preflight compares the archive's uncompressed size with the free space on
// the data root's filesystem.
func (l *Launcher) preflight(ctx context.Context, archivePath string) error {
	p := l.plan

	need, err := archive.UncompressedSize(archivePath)
	if err != nil {
		return classify("read payload", archivePath, err)
	}

	free, err := l.freeSpace(ctx, p.DataRoot)
	if err != nil {
		l.logger.Warn("Could not determine free space, continuing", "path", p.DataRoot, "error", err)
		return nil
	}

	l.logger.Debug("Disk space preflight", "need", need, "free", free)
	if free < need {
		return &Error{
			Category: CategoryIO,
			Op:       "preflight",
			Path:     p.DataRoot,
			Err:      fmt.Errorf("%w: need %s, %s available", ErrInsufficientSpace, formatBytes(need), formatBytes(free)),
		}
	}
	return nil
}
