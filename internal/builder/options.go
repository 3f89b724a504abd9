package builder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
)

// Default output names.
const (
	DefaultOutput    = "assistant"
	DefaultOutputExe = "assistant.exe"
)

// Options are the inputs of one build.
type Options struct {
	// Tool is the wrapped tool's executable. Required.
	Tool string

	// Project is the project directory holding robot.yaml. Required.
	Project string

	// Env is the tool's home directory. Optional.
	Env string

	// Launcher is the compiled launcher executable. Required.
	Launcher string

	// Output is the file to write. Empty selects DefaultOutput or
	// DefaultOutputExe depending on the launcher binary.
	Output string

	// TempDir holds the intermediate payload. It is created if missing and
	// kept. Empty uses a fresh temporary directory that is removed.
	TempDir string

	// AppName is recorded in the metadata. Empty records
	// format.DefaultAppName.
	AppName string
}

// ValidationError lists every problem found in Options.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid build options:\n" + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks the inputs and reports all problems at once. Problems that
// do not prevent a build are returned as warnings.
func Validate(opts Options) (warnings []string, err error) {
	var errs []error

	if e := checkFile("tool", opts.Tool); e != nil {
		errs = append(errs, e)
	} else if e := checkToolName(opts.Tool); e != nil {
		errs = append(errs, e)
	}
	if e := checkFile("launcher", opts.Launcher); e != nil {
		errs = append(errs, e)
	}

	if e := checkDir("project", opts.Project); e != nil {
		errs = append(errs, e)
	} else if _, statErr := os.Stat(filepath.Join(opts.Project, format.DescriptorName)); statErr != nil {
		warnings = append(warnings, fmt.Sprintf("%s not found in project %s", format.DescriptorName, opts.Project))
	}

	if opts.Env != "" {
		if e := checkDir("env", opts.Env); e != nil {
			errs = append(errs, e)
		}
	}

	if len(errs) > 0 {
		return warnings, &ValidationError{Err: errors.Join(errs...)}
	}
	return warnings, nil
}

func checkFile(what, path string) error {
	if path == "" {
		return fmt.Errorf("%s: path is required", what)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %s is not a regular file", what, path)
	}
	return nil
}

// checkToolName rejects tools whose archive name is one of the fixed
// directory prefixes. Case-insensitive filesystems would merge them too.
func checkToolName(path string) error {
	name := filepath.Base(path)
	for _, reserved := range []string{format.ProjectArchiveDir, format.EnvArchiveDir} {
		if strings.EqualFold(name, reserved) {
			return fmt.Errorf("tool: name %q is reserved for the %s directory in the payload", name, reserved)
		}
	}
	return nil
}

func checkDir(what, path string) error {
	if path == "" {
		return fmt.Errorf("%s: path is required", what)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %s is not a directory", what, path)
	}
	return nil
}

// OutputName returns the default output file name for launcher: Windows
// executables (MZ header) get the .exe name.
func OutputName(launcher string) string {
	f, err := os.Open(launcher)
	if err != nil {
		return DefaultOutput
	}
	defer f.Close()

	magic := make([]byte, 2)
	if _, err := io.ReadFull(f, magic); err != nil {
		return DefaultOutput
	}
	if bytes.Equal(magic, []byte("MZ")) {
		return DefaultOutputExe
	}
	return DefaultOutput
}

// EnvCandidates returns, in order, the directories searched by DetectEnv.
func EnvCandidates(home, cwd string) []string {
	var c []string
	if home != "" {
		c = append(c,
			filepath.Join(home, ".robocorp", "holotree"),
			filepath.Join(home, format.EnvArchiveDir),
		)
	}
	if cwd != "" {
		c = append(c, filepath.Join(cwd, format.EnvArchiveDir))
	}
	return c
}

// DetectEnv returns the first existing directory among EnvCandidates, or "".
func DetectEnv(home, cwd string) string {
	for _, dir := range EnvCandidates(home, cwd) {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}
