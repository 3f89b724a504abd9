package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ZebulonRouseFrantzich/sfx/internal/builder"
	"github.com/ZebulonRouseFrantzich/sfx/internal/clock"
	"github.com/ZebulonRouseFrantzich/sfx/internal/config"
	"github.com/ZebulonRouseFrantzich/sfx/internal/logging"
	"github.com/ZebulonRouseFrantzich/sfx/internal/platform"
	"github.com/ZebulonRouseFrantzich/sfx/internal/recipe"
)

type buildFlags struct {
	opts      builder.Options
	recipe    string
	detectEnv bool
	logLevel  string
}

func newBuildCmd() *cobra.Command {
	f := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a self-extracting file",
		Example: `  sfx build --tool ./rcc --project ./robot --env ~/.rcc_home
  sfx build --recipe sfx.lua --output dist/invoices`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.opts.Tool, "tool", "", "tool executable to package (required)")
	fs.StringVar(&f.opts.Project, "project", "", "project directory containing robot.yaml (required)")
	fs.StringVar(&f.opts.Env, "env", "", "tool home directory to package as .rcc_home")
	fs.StringVar(&f.opts.Output, "output", "", `output file (default "assistant", or "assistant.exe" for a Windows launcher)`)
	fs.StringVar(&f.opts.Launcher, "launcher", "", "launcher executable (default sfx-launcher next to sfx)")
	fs.StringVar(&f.opts.TempDir, "temp-dir", "", "directory for intermediate files, kept after the build")
	fs.StringVar(&f.opts.AppName, "app-name", "", "application name recorded in the build metadata")
	fs.StringVar(&f.recipe, "recipe", "", "Lua build recipe; explicit flags override its values")
	fs.BoolVar(&f.detectEnv, "detect-env", false, "look for a tool home directory when --env is not given")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")

	return cmd
}

func runBuild(cmd *cobra.Command, f *buildFlags) error {
	env, err := config.LoadBuilder()
	if err != nil {
		return err
	}
	if f.logLevel == "" {
		f.logLevel = env.LogLevel
	}

	logger, err := logging.New(logging.Options{Level: f.logLevel, Console: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	detector := platform.NewDetector()
	opts := f.opts

	if f.recipe != "" {
		r, err := recipe.NewParser(detector).ParseFile(ctx, f.recipe)
		if err != nil {
			return fmt.Errorf("load recipe: %w", err)
		}
		applyRecipe(&opts, r, cmd.Flags())
		logger.Debug("Recipe applied", "recipe", f.recipe)
	}

	if opts.Launcher == "" {
		opts.Launcher = env.Launcher
	}
	if opts.Launcher == "" {
		opts.Launcher = defaultLauncher()
	}
	if opts.TempDir == "" {
		opts.TempDir = env.TempDir
	}

	if opts.Env == "" && f.detectEnv {
		home, _ := os.UserHomeDir()
		cwd, _ := os.Getwd()
		if found := builder.DetectEnv(home, cwd); found != "" {
			logger.Info("Detected environment", "path", found)
			opts.Env = found
		} else {
			logger.Warn("No environment found", "searched", builder.EnvCandidates(home, cwd))
		}
	}

	res, err := builder.New(logger, clock.Real{}, detector).Build(ctx, opts)
	if err != nil {
		return err
	}

	printResult(cmd, res)
	return nil
}

// applyRecipe fills opts from r wherever the matching flag was not set.
func applyRecipe(opts *builder.Options, r *recipe.Recipe, flags *pflag.FlagSet) {
	fields := []struct {
		flag string
		dst  *string
		val  string
	}{
		{"app-name", &opts.AppName, r.App},
		{"tool", &opts.Tool, r.Tool},
		{"project", &opts.Project, r.Project},
		{"env", &opts.Env, r.Env},
		{"output", &opts.Output, r.Output},
		{"launcher", &opts.Launcher, r.Launcher},
	}
	for _, f := range fields {
		if !flags.Changed(f.flag) && f.val != "" {
			*f.dst = f.val
		}
	}
}

// defaultLauncher is sfx-launcher in the directory holding the running sfx.
func defaultLauncher() string {
	name := "sfx-launcher"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	exe, err := os.Executable()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(exe), name)
}

func printResult(cmd *cobra.Command, res *builder.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nBuilt %s\n", res.Output)
	fmt.Fprintf(out, "  launcher:    %d bytes (with metadata)\n", res.LauncherSize)
	fmt.Fprintf(out, "  separator:   %d bytes\n", res.SeparatorSize)
	fmt.Fprintf(out, "  marker:      %d bytes\n", res.MarkerSize)
	fmt.Fprintf(out, "  payload:     %d bytes at offset %d\n", res.PayloadSize, res.PayloadOffset)
	fmt.Fprintf(out, "  total:       %d bytes\n", res.OutputSize)
	fmt.Fprintf(out, "  sha256:      %s\n", res.OutputSHA256)
	fmt.Fprintf(out, "  fingerprint: %s\n", res.PayloadFingerprint)
}
