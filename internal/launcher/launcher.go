// Package launcher implements the program embedded at the front of every
// self-extracting file: find the payload in the running file, extract it to
// a per-application directory when its fingerprint changed, then hand off
// to the packaged tool.
package launcher

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/sfx/internal/cache"
	"github.com/ZebulonRouseFrantzich/sfx/internal/fsutil"
	"github.com/ZebulonRouseFrantzich/sfx/internal/locate"
	"github.com/ZebulonRouseFrantzich/sfx/internal/logging"
	"github.com/ZebulonRouseFrantzich/sfx/internal/platform"
	"github.com/ZebulonRouseFrantzich/sfx/internal/runner"
)

// ToolRunner starts the packaged tool and returns its exit code.
type ToolRunner interface {
	Run(ctx context.Context, inv runner.Invocation) (int, error)
}

// Options configures a Launcher.
type Options struct {
	Logger logging.Logger

	// Runner defaults to a runner.Runner on the process's standard streams.
	Runner ToolRunner

	// FreeSpace defaults to platform.FreeSpace.
	FreeSpace func(ctx context.Context, path string) (uint64, error)
}

// Launcher executes a Plan.
type Launcher struct {
	plan      *Plan
	logger    logging.Logger
	runner    ToolRunner
	freeSpace func(ctx context.Context, path string) (uint64, error)

	replaceDir func(staging, target string) error
}

// New creates a Launcher for plan.
func New(plan *Plan, opts Options) *Launcher {
	l := &Launcher{
		plan:      plan,
		logger:    logging.OrNop(opts.Logger),
		runner:    opts.Runner,
		freeSpace: opts.FreeSpace,

		replaceDir: fsutil.ReplaceDir,
	}
	if l.runner == nil {
		l.runner = runner.New(runner.Options{Logger: l.logger})
	}
	if l.freeSpace == nil {
		l.freeSpace = platform.FreeSpace
	}
	return l
}

// Run prepares the extraction target and runs the tool. It returns the
// tool's exit code, or an *Error when the launcher itself failed.
func (l *Launcher) Run(ctx context.Context) (int, error) {
	p := l.plan
	l.logger.Info("sfx launcher", "executable", p.Executable, "target", p.Target)
	l.logger.Info("Payload found", "offset", p.PayloadOffset)

	if p.Metadata != nil {
		l.logger.Debug("Build metadata",
			"app", p.Metadata.App,
			"tool", p.Metadata.Tool,
			"build_id", p.Metadata.BuildID,
			"built_at", p.Metadata.BuiltAt,
			"revision", p.Metadata.ProjectRevision)
	} else if p.MetadataErr != nil {
		l.logger.Warn("Ignoring unreadable build metadata", "error", p.MetadataErr)
	}

	if _, err := l.Prepare(ctx); err != nil {
		return 0, err
	}

	res, err := locate.New(p.Target, locate.Options{Tool: p.ToolName(), Logger: l.logger}).All()
	if err != nil {
		return 0, classify("locate resources", p.Target, err)
	}
	l.logger.Info("Found tool", "path", res.Tool)
	l.logger.Info("Found descriptor", "path", res.Descriptor)
	if res.Env != "" {
		l.logger.Info("Found tool home", "path", res.Env)
	} else {
		l.logger.Warn("No home directory in payload, the tool will use its default")
	}

	if err := ctx.Err(); err != nil {
		return 0, classify("start tool", res.Tool, err)
	}

	code, err := l.runner.Run(ctx, runner.Invocation{
		Tool:       res.Tool,
		Descriptor: res.Descriptor,
		Home:       res.Env,
	})
	if err != nil {
		return 0, classify("run tool", res.Tool, err)
	}
	if code != 0 {
		l.logger.Error("Tool exited with non-zero status", "exit_code", code)
	}
	return code, nil
}

// Prepare makes sure the extraction target holds the running payload,
// extracting it when the fingerprint check asks for it.
func (l *Launcher) Prepare(ctx context.Context) (cache.Decision, error) {
	p := l.plan

	fingerprint, err := cache.Fingerprint(p.Executable, p.PayloadOffset)
	if err != nil {
		return cache.Decision{}, &Error{Category: CategoryIO, Op: "fingerprint payload", Path: p.Executable, Offset: p.PayloadOffset, Err: err}
	}

	decision, err := cache.Check(p.Target, fingerprint)
	if err != nil {
		return decision, &Error{Category: CategoryIO, Op: "check target", Path: p.Target, Err: err}
	}

	if !decision.Extract {
		l.logger.Info("Payload unchanged, skipping extraction")
		return decision, nil
	}

	switch decision.Reason {
	case cache.ReasonFingerprintChanged:
		l.logger.Info("Payload changed, re-extraction needed", "stored", decision.Stored, "current", decision.Current)
	default:
		l.logger.Info("Extraction needed", "reason", string(decision.Reason))
	}

	if err := l.extract(ctx, fingerprint); err != nil {
		return decision, err
	}
	return decision, nil
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
