package launcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZebulonRouseFrantzich/sfx/internal/archive"
	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
	"github.com/ZebulonRouseFrantzich/sfx/internal/locate"
	"github.com/ZebulonRouseFrantzich/sfx/internal/runner"
)

// Category classifies launcher failures. Each maps to a distinct exit code.
type Category int

const (
	// CategoryFormat: the running file carries no payload marker.
	CategoryFormat Category = iota + 1
	// CategoryResource: the payload lacks the tool or descriptor.
	CategoryResource
	// CategoryIO: reading, preflight or extraction failed.
	CategoryIO
	// CategoryChild: the tool could not be started.
	CategoryChild
	// CategoryInterrupted: the launcher was cancelled before the handoff.
	CategoryInterrupted
)

// Exit codes for the launcher's own failures. Any other code is the
// wrapped tool's.
const (
	ExitFormat      = 3
	ExitResource    = 4
	ExitIO          = 5
	ExitStart       = 127
	ExitInterrupted = 130
)

func (c Category) String() string {
	switch c {
	case CategoryFormat:
		return "format"
	case CategoryResource:
		return "resource"
	case CategoryIO:
		return "io"
	case CategoryChild:
		return "child"
	case CategoryInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ExitCode returns the process exit code for the category.
func (c Category) ExitCode() int {
	switch c {
	case CategoryFormat:
		return ExitFormat
	case CategoryResource:
		return ExitResource
	case CategoryIO:
		return ExitIO
	case CategoryChild:
		return ExitStart
	case CategoryInterrupted:
		return ExitInterrupted
	default:
		return 1
	}
}

// ErrInsufficientSpace is wrapped by preflight failures.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// Error is a classified launcher failure.
type Error struct {
	Category Category
	Op       string
	Path     string
	Err      error

	// Offset locates the payload in Path when the failure concerns it.
	Offset int64
}

func (e *Error) Error() string {
	if e.Path != "" && e.Offset > 0 {
		return fmt.Sprintf("%s %s at offset %d: %v", e.Op, e.Path, e.Offset, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Summary is the single line shown on the terminal. The log file holds the
// full detail.
func (e *Error) Summary() string {
	switch e.Category {
	case CategoryFormat:
		return fmt.Sprintf("no embedded payload in %s; this launcher has not been built with 'sfx build'", e.Path)
	case CategoryResource:
		var nf *locate.NotFoundError
		if errors.As(e.Err, &nf) {
			return fmt.Sprintf("payload has no %s", nf.Resource)
		}
		return "payload is incomplete: " + e.Err.Error()
	case CategoryIO:
		var corrupt *archive.CorruptError
		if errors.As(e.Err, &corrupt) {
			return "embedded payload is corrupt"
		}
		if errors.Is(e.Err, ErrInsufficientSpace) {
			return "not enough disk space to extract: " + e.Err.Error()
		}
		return "extraction failed: " + e.Error()
	case CategoryChild:
		var start *runner.StartError
		if errors.As(e.Err, &start) {
			return fmt.Sprintf("could not start %s: %v", start.Path, start.Err)
		}
		return fmt.Sprintf("could not start %s: %v", e.Path, e.Err)
	case CategoryInterrupted:
		return "interrupted"
	default:
		return e.Error()
	}
}

// ExitCode maps err to a process exit code: the category code for an
// *Error, 0 for nil, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Category.ExitCode()
	}
	return 1
}

// Summary returns the terminal line for err.
func Summary(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Summary()
	}
	return err.Error()
}

// classify wraps err with the category implied by its type.
func classify(op, path string, err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}

	cat := CategoryIO
	var nf *locate.NotFoundError
	var start *runner.StartError
	switch {
	case errors.Is(err, format.ErrMarkerNotFound):
		cat = CategoryFormat
	case errors.As(err, &nf):
		cat = CategoryResource
	case errors.As(err, &start):
		cat = CategoryChild
		if path == "" {
			path = start.Path
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		cat = CategoryInterrupted
	}
	return &Error{Category: cat, Op: op, Path: path, Err: err}
}
