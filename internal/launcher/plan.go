package launcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/sfx/internal/config"
	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
	"github.com/ZebulonRouseFrantzich/sfx/internal/platform"
)

// Plan holds everything the launcher resolves about its own file and
// destination before doing any work.
type Plan struct {
	// Executable is the self-extracting file being run.
	Executable string

	// PayloadOffset is the first payload byte.
	PayloadOffset int64

	// Metadata is the build metadata, nil when absent or unreadable.
	Metadata *format.Metadata

	// MetadataErr records why Metadata could not be decoded, if it was
	// present but invalid.
	MetadataErr error

	AppName  string
	DataRoot string

	// Target is the extraction directory: DataRoot/AppName.
	Target string

	// LogPath lives beside Target so replacing Target never removes it.
	LogPath string

	KeepFailedStaging bool
}

// NewPlan resolves the plan for cfg. It always returns a usable plan, even
// alongside an error, so that the caller can open the log file before
// reporting the failure; with an error, AppName falls back to the default.
func NewPlan(cfg config.Launcher) (*Plan, error) {
	p := &Plan{
		AppName:           format.DefaultAppName,
		KeepFailedStaging: cfg.KeepFailedStaging,
	}

	root := cfg.DataRoot
	if root == "" {
		var err error
		if root, err = platform.DataRoot(); err != nil {
			return p, &Error{Category: CategoryIO, Op: "resolve data root", Err: err}
		}
	}
	p.DataRoot = root
	fromEnv := p.setApp(cfg.AppName)

	exe, err := resolveExecutable(cfg.Executable)
	if err != nil {
		return p, &Error{Category: CategoryIO, Op: "resolve executable", Err: err}
	}
	p.Executable = exe

	offset, err := format.FindPayloadOffset(exe)
	if errors.Is(err, format.ErrMarkerNotFound) {
		return p, &Error{Category: CategoryFormat, Op: "find payload", Path: exe, Err: err}
	}
	if err != nil {
		return p, &Error{Category: CategoryIO, Op: "find payload", Path: exe, Err: err}
	}
	p.PayloadOffset = offset

	meta, err := format.ReadMetadata(exe, format.MarkerStart(offset))
	switch {
	case err == nil:
		p.Metadata = meta
	case errors.Is(err, format.ErrNoMetadata):
	default:
		p.MetadataErr = err
	}

	if !fromEnv && p.Metadata != nil {
		p.setApp(p.Metadata.App)
	}

	return p, nil
}

// ToolName is the tool name recorded at build time, or "".
func (p *Plan) ToolName() string {
	if p.Metadata == nil {
		return ""
	}
	return p.Metadata.Tool
}

// setApp applies name if it is usable and reports whether it was.
func (p *Plan) setApp(name string) bool {
	ok := name != "" && validAppName(name)
	if ok {
		p.AppName = name
	}
	p.Target = filepath.Join(p.DataRoot, p.AppName)
	p.LogPath = filepath.Join(p.DataRoot, p.AppName+".log")
	return ok
}

// validAppName rejects names that would escape the data root.
func validAppName(name string) bool {
	return name != "." && name != ".." && filepath.Base(name) == name && filepath.IsLocal(name)
}

func resolveExecutable(override string) (string, error) {
	exe := override
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return "", fmt.Errorf("locate running executable: %w", err)
		}
	}
	exe, err := filepath.Abs(exe)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", exe, err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}
