// Package runner starts the packaged tool as a child process and waits for
// it to finish.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
	"github.com/ZebulonRouseFrantzich/sfx/internal/logging"
)

// StartError reports a child process that could not be started.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// Invocation describes one run of the tool.
type Invocation struct {
	Tool       string
	Descriptor string

	// Home is exported as ROBOCORP_HOME when set. When empty, any inherited
	// ROBOCORP_HOME is removed.
	Home string
}

// Args returns the tool's argument vector, tool path included.
func (inv Invocation) Args() []string {
	return []string{inv.Tool, format.RunSubcommand, format.DescriptorFlag, inv.Descriptor}
}

// Dir returns the working directory of the child: the descriptor's
// directory.
func (inv Invocation) Dir() string {
	return filepath.Dir(inv.Descriptor)
}

// Environ derives the child's environment from base.
func (inv Invocation) Environ(base []string) []string {
	env := make([]string, 0, len(base)+1)
	prefix := format.HomeEnvVar + "="
	for _, kv := range base {
		if envKeyEqual(kv, prefix) {
			continue
		}
		env = append(env, kv)
	}
	if inv.Home != "" {
		env = append(env, prefix+inv.Home)
	}
	return env
}

func envKeyEqual(kv, prefix string) bool {
	if runtime.GOOS == "windows" {
		return len(kv) >= len(prefix) && strings.EqualFold(kv[:len(prefix)], prefix)
	}
	return strings.HasPrefix(kv, prefix)
}

// Runner executes invocations with inherited standard streams.
type Runner struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	environ func() []string
	logger  logging.Logger
}

// Options configures a Runner. Nil streams default to the process's own.
type Options struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Environ func() []string
	Logger  logging.Logger
}

// New creates a Runner.
func New(opts Options) *Runner {
	r := &Runner{
		stdin:   opts.Stdin,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
		environ: opts.Environ,
		logger:  logging.OrNop(opts.Logger),
	}
	if r.stdin == nil {
		r.stdin = os.Stdin
	}
	if r.stdout == nil {
		r.stdout = os.Stdout
	}
	if r.stderr == nil {
		r.stderr = os.Stderr
	}
	if r.environ == nil {
		r.environ = os.Environ
	}
	return r
}

// Run starts the tool, waits for it, and returns its exit code. A non-zero
// exit code is not an error. Failure to start is a *StartError.
//
// ctx is only checked before the start. A running child is not killed on
// cancellation: it shares the terminal and receives interrupts itself.
func (r *Runner) Run(ctx context.Context, inv Invocation) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := EnsureExecutable(inv.Tool); err != nil {
		return 0, &StartError{Path: inv.Tool, Err: err}
	}

	args := inv.Args()
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = inv.Dir()
	cmd.Env = inv.Environ(r.environ())
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	r.logger.Info("Starting tool", "args", args, "dir", cmd.Dir, "home", inv.Home)

	if err := cmd.Start(); err != nil {
		return 0, &StartError{Path: inv.Tool, Err: err}
	}

	err := cmd.Wait()
	if err == nil {
		r.logger.Info("Tool finished", "exit_code", 0)
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = signalExitCode(exitErr.ProcessState)
		}
		r.logger.Info("Tool finished", "exit_code", code)
		return code, nil
	}

	return 0, fmt.Errorf("wait for %s: %w", inv.Tool, err)
}

// EnsureExecutable sets the executable bits on path. It is a no-op on
// Windows.
func EnsureExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode().Perm()&0111 == 0111 {
		return nil
	}
	if err := os.Chmod(path, info.Mode().Perm()|0755); err != nil {
		return fmt.Errorf("make %s executable: %w", path, err)
	}
	return nil
}
