// Package builder assembles self-extracting files: it packs the tool, its
// home directory and a project into a payload archive and concatenates the
// launcher, build metadata, separator, marker and payload into one file.
package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/sfx/internal/cache"
	"github.com/ZebulonRouseFrantzich/sfx/internal/clock"
	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
	"github.com/ZebulonRouseFrantzich/sfx/internal/logging"
	"github.com/ZebulonRouseFrantzich/sfx/internal/platform"
	"github.com/ZebulonRouseFrantzich/sfx/internal/vcs"
)

// Builder produces self-extracting files.
type Builder struct {
	logger   logging.Logger
	clock    clock.Clock
	detector platform.Detector
}

// New returns a Builder. A nil clock uses clock.Real; a nil detector leaves
// builder_host out of the metadata.
func New(logger logging.Logger, clk clock.Clock, detector platform.Detector) *Builder {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Builder{
		logger:   logging.OrNop(logger),
		clock:    clk,
		detector: detector,
	}
}

// Build validates opts, builds the payload and assembles the output file.
func (b *Builder) Build(ctx context.Context, opts Options) (*Result, error) {
	warnings, err := Validate(opts)
	for _, w := range warnings {
		b.logger.Warn(w)
	}
	if err != nil {
		return nil, err
	}

	if opts.Output == "" {
		opts.Output = OutputName(opts.Launcher)
	}
	if opts.AppName == "" {
		opts.AppName = format.DefaultAppName
	}

	tempDir, cleanup, err := prepareTempDir(opts.TempDir)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	payload, err := os.CreateTemp(tempDir, "payload-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create payload file: %w", err)
	}
	payloadPath := payload.Name()
	defer os.Remove(payloadPath)

	if _, err := BuildPayload(ctx, payload, opts, b.logger); err != nil {
		payload.Close()
		return nil, err
	}
	if _, err := payload.Seek(0, io.SeekStart); err != nil {
		payload.Close()
		return nil, fmt.Errorf("rewind payload: %w", err)
	}
	fingerprint, err := cache.FingerprintReader(payload)
	payload.Close()
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(payloadPath)
	if err != nil {
		return nil, fmt.Errorf("stat payload: %w", err)
	}

	meta := b.metadata(ctx, opts, fingerprint, info.Size())

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	b.logger.Info("Assembling output", "output", opts.Output)
	res, err := Assemble(opts.Output, opts.Launcher, meta, payloadPath)
	if err != nil {
		return nil, err
	}

	b.logger.Info("Build complete",
		"output", res.Output,
		"size", res.OutputSize,
		"payload_offset", res.PayloadOffset,
		"sha256", res.OutputSHA256,
	)
	return res, nil
}

// metadata describes this build. Revision and host detection are best
// effort: failures are logged and the field left empty.
func (b *Builder) metadata(ctx context.Context, opts Options, fingerprint string, size int64) *format.Metadata {
	meta := &format.Metadata{
		App:                opts.AppName,
		Tool:               filepath.Base(opts.Tool),
		BuildID:            uuid.NewString(),
		BuiltAt:            b.clock.Now(),
		ToolSource:         absOrSelf(opts.Tool),
		ProjectSource:      absOrSelf(opts.Project),
		PayloadFingerprint: fingerprint,
		PayloadSize:        size,
	}
	if opts.Env != "" {
		meta.EnvSource = absOrSelf(opts.Env)
	}

	rev, err := vcs.Revision(ctx, opts.Project)
	if err != nil {
		b.logger.Warn("Could not read project revision", "error", err)
	}
	meta.ProjectRevision = rev

	if b.detector != nil {
		info, err := b.detector.Detect(ctx)
		if err != nil {
			b.logger.Warn("Could not detect build host", "error", err)
		} else {
			meta.BuilderHost = info.String()
		}
	}

	return meta
}

// prepareTempDir returns dir, created if needed and kept, or a fresh
// temporary directory that cleanup removes.
func prepareTempDir(dir string) (string, func(), error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", nil, fmt.Errorf("create temp dir: %w", err)
		}
		return dir, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "sfx-build-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
