// Package locate finds the tool, the project descriptor and the tool's home
// directory inside an extraction target.
//
// Each resource has a fixed, ordered list of candidate paths relative to the
// target; the first candidate that exists with the right type wins. There is
// no recursive fallback search: an archive that does not follow the layout
// written by the builder is reported as missing the resource.
package locate

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
	"github.com/ZebulonRouseFrantzich/sfx/internal/logging"
)

// Resource names a located item.
type Resource string

const (
	ResourceTool       Resource = "tool"
	ResourceDescriptor Resource = "descriptor"
	ResourceEnv        Resource = "environment"
)

// NotFoundError reports a required resource with no matching candidate.
type NotFoundError struct {
	Resource   Resource
	Root       string
	Candidates []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found in %s (tried %s)", e.Resource, e.Root, strings.Join(e.Candidates, ", "))
}

// Resources are the paths handed to the runner.
type Resources struct {
	Tool       string
	Descriptor string

	// Env is empty when the payload carries no home directory.
	Env string
}

// Locator searches an extraction target.
type Locator struct {
	root   string
	tool   string
	logger logging.Logger
}

// Options configures a Locator.
type Options struct {
	// Tool is the tool name recorded at build time; it is tried before the
	// default names.
	Tool   string
	Logger logging.Logger
}

// New returns a Locator for the extraction target root.
func New(root string, opts Options) *Locator {
	return &Locator{
		root:   root,
		tool:   opts.Tool,
		logger: logging.OrNop(opts.Logger),
	}
}

// ToolCandidates lists the relative paths searched for the tool.
func (l *Locator) ToolCandidates() []string {
	var names []string
	if l.tool != "" {
		names = append(names, l.tool)
	}
	for _, n := range format.DefaultToolNames {
		if n != l.tool {
			names = append(names, n)
		}
	}

	candidates := append([]string{}, names...)
	for _, n := range names {
		candidates = append(candidates, path.Join("bin", n))
	}
	return candidates
}

// DescriptorCandidates lists the relative paths searched for the descriptor.
func DescriptorCandidates() []string {
	return []string{
		path.Join(format.ProjectArchiveDir, format.DescriptorName),
		format.DescriptorName,
		path.Join("assistant", format.DescriptorName),
	}
}

// EnvCandidates lists the relative paths searched for the home directory.
func EnvCandidates() []string {
	return []string{format.EnvArchiveDir, strings.TrimPrefix(format.EnvArchiveDir, ".")}
}

// Tool returns the absolute path of the tool executable.
func (l *Locator) Tool() (string, error) {
	return l.find(ResourceTool, l.ToolCandidates(), isRegular)
}

// Descriptor returns the absolute path of the project descriptor.
func (l *Locator) Descriptor() (string, error) {
	return l.find(ResourceDescriptor, DescriptorCandidates(), isRegular)
}

// Env returns the absolute path of the home directory, or "" if the payload
// has none.
func (l *Locator) Env() (string, error) {
	p, err := l.find(ResourceEnv, EnvCandidates(), isDir)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		l.logger.Debug("No home directory in payload", "candidates", nf.Candidates)
		return "", nil
	}
	return p, err
}

// All locates every resource. The tool and descriptor are required.
func (l *Locator) All() (Resources, error) {
	var r Resources
	var err error

	if r.Tool, err = l.Tool(); err != nil {
		return r, err
	}
	if r.Descriptor, err = l.Descriptor(); err != nil {
		return r, err
	}
	if r.Env, err = l.Env(); err != nil {
		return r, err
	}
	return r, nil
}

func (l *Locator) find(res Resource, candidates []string, match func(os.FileInfo) bool) (string, error) {
	for _, c := range candidates {
		p := filepath.Join(l.root, filepath.FromSlash(c))
		info, err := os.Stat(p)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				l.logger.Debug("Candidate not accessible", "resource", string(res), "path", p, "error", err)
			}
			continue
		}
		if !match(info) {
			l.logger.Debug("Candidate has wrong type", "resource", string(res), "path", p)
			continue
		}
		l.logger.Debug("Located resource", "resource", string(res), "path", p)
		return p, nil
	}
	return "", &NotFoundError{Resource: res, Root: l.root, Candidates: candidates}
}

func isRegular(info os.FileInfo) bool { return info.Mode().IsRegular() }
func isDir(info os.FileInfo) bool     { return info.IsDir() }
