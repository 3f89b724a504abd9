package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/sfx/internal/builder"
	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
	"github.com/ZebulonRouseFrantzich/sfx/internal/recipe"
	"github.com/ZebulonRouseFrantzich/sfx/internal/testutil"
)

// execute runs the sfx command tree with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

type fixture struct {
	dir      string
	tool     string
	project  string
	env      string
	launcher string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	testutil.SetupTestEnv(t)

	dir := t.TempDir()
	f := fixture{
		dir:      dir,
		tool:     filepath.Join(dir, "rcc"),
		project:  filepath.Join(dir, "robot"),
		env:      filepath.Join(dir, "home"),
		launcher: filepath.Join(dir, "sfx-launcher"),
	}
	testutil.WriteFile(t, f.tool, "#!/bin/sh\nexit 0\n", 0755)
	testutil.WriteFile(t, f.launcher, "\x7fELF launcher\x00"+format.Marker+"\x00", 0755)
	testutil.WriteFile(t, filepath.Join(f.project, "robot.yaml"), "tasks: {}\n", 0644)
	testutil.WriteFile(t, filepath.Join(f.env, "settings.yaml"), "a: 1\n", 0644)
	return f
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "sfx ") {
		t.Errorf("version output = %q", out)
	}
}

func TestBuildAndInspect(t *testing.T) {
	f := newFixture(t)
	output := filepath.Join(f.dir, "dist", "invoices")

	out, err := execute(t, "build",
		"--tool", f.tool,
		"--project", f.project,
		"--env", f.env,
		"--launcher", f.launcher,
		"--output", output,
		"--app-name", "Invoices",
		"--log-level", "warn",
	)
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Built "+output) {
		t.Errorf("build output missing summary:\n%s", out)
	}

	out, err = execute(t, "inspect", output)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	for _, want := range []string{
		"Match:        yes",
		"app: Invoices",
		"tool: rcc",
		"robot/robot.yaml",
		".rcc_home/settings.yaml",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}
}

func TestBuildValidationFailure(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "build", "--project", f.project, "--launcher", f.launcher, "--log-level", "error")
	if err == nil {
		t.Fatal("expected error without --tool")
	}
	if !strings.Contains(err.Error(), "tool: path is required") {
		t.Errorf("error = %v", err)
	}
}

func TestBuildWithRecipe(t *testing.T) {
	f := newFixture(t)
	recipePath := filepath.Join(f.dir, "sfx.lua")
	testutil.WriteFile(t, recipePath, `sfx = {
  app = "FromRecipe",
  tool = "rcc",
  project = "robot",
  launcher = "sfx-launcher",
  output = "recipe-out",
}`, 0644)

	override := filepath.Join(f.dir, "flag-out")
	out, err := execute(t, "build", "--recipe", recipePath, "--output", override, "--log-level", "error")
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, out)
	}

	if _, err := os.Stat(override); err != nil {
		t.Errorf("flag did not override recipe output: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "recipe-out")); !os.IsNotExist(err) {
		t.Error("recipe output written despite --output")
	}

	offset, err := format.FindPayloadOffset(override)
	if err != nil {
		t.Fatal(err)
	}
	meta, err := format.ReadMetadata(override, format.MarkerStart(offset))
	if err != nil {
		t.Fatal(err)
	}
	if meta.App != "FromRecipe" {
		t.Errorf("App = %q, want recipe value", meta.App)
	}
}

func TestApplyRecipe(t *testing.T) {
	cmd := newBuildCmd()
	if err := cmd.Flags().Parse([]string{"--tool", "/flag/rcc"}); err != nil {
		t.Fatal(err)
	}

	opts := builder.Options{Tool: "/flag/rcc"}
	applyRecipe(&opts, &recipe.Recipe{Tool: "/recipe/rcc", Project: "/recipe/robot", App: "R"}, cmd.Flags())

	if opts.Tool != "/flag/rcc" {
		t.Errorf("Tool = %q, flag should win", opts.Tool)
	}
	if opts.Project != "/recipe/robot" || opts.AppName != "R" {
		t.Errorf("recipe values not applied: %+v", opts)
	}
}

func TestInspectUnbuiltFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	testutil.WriteFile(t, path, "no marker here", 0644)

	if _, err := execute(t, "inspect", path); err == nil {
		t.Fatal("expected error for a file without a payload")
	}
}

func TestBuildDetectEnv(t *testing.T) {
	f := newFixture(t)
	chdirForTest(t, f.dir)
	local := filepath.Join(f.dir, ".rcc_home")
	testutil.WriteFile(t, filepath.Join(local, "hololib", "x"), "x", 0644)

	output := filepath.Join(f.dir, "out")
	if out, err := execute(t, "build", "--tool", f.tool, "--project", f.project,
		"--launcher", f.launcher, "--output", output, "--detect-env", "--log-level", "error"); err != nil {
		t.Fatalf("build failed: %v\n%s", err, out)
	}

	out, err := execute(t, "inspect", output)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, ".rcc_home/hololib/x") {
		t.Errorf("detected env not packaged:\n%s", out)
	}
}

// chdirForTest changes the working directory for the duration of the test
// and restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
