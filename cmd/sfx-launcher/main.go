// Command sfx-launcher is the program embedded at the front of every built
// file. It extracts the payload that follows it when needed and runs the
// packaged tool, exiting with the tool's exit code.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZebulonRouseFrantzich/sfx/internal/config"
	"github.com/ZebulonRouseFrantzich/sfx/internal/launcher"
	"github.com/ZebulonRouseFrantzich/sfx/internal/logging"
)

func main() {
	os.Exit(run(os.Stdout, os.Stderr))
}

func run(stdout, stderr io.Writer) int {
	cfg, cfgErr := config.LoadLauncher()

	plan, planErr := launcher.NewPlan(cfg)

	logger, logPath := openLogger(cfg.LogLevel, plan.LogPath, stdout, stderr)
	defer logger.Close()

	if cfgErr != nil {
		logger.Warn("Ignoring invalid launcher settings", "error", cfgErr)
	}

	if planErr != nil {
		logger.Error("Launcher failed", "error", planErr, "log", logPath)
		fmt.Fprintf(stderr, "Error: %s\n", launcher.Summary(planErr))
		return launcher.ExitCode(planErr)
	}

	// The tool shares the terminal and receives interrupts itself; the
	// launcher only stops between its own steps.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := launcher.New(plan, launcher.Options{Logger: logger}).Run(ctx)
	if err != nil {
		logger.Error("Launcher failed", "error", err, "log", logPath)
		fmt.Fprintf(stderr, "Error: %s\n", launcher.Summary(err))
		return launcher.ExitCode(err)
	}
	return code
}

// openLogger logs to the console and to logPath. An unknown level falls
// back to info; an unusable log file falls back to the console alone, and
// the returned path is then empty.
func openLogger(level, logPath string, console, stderr io.Writer) (*logging.ZapLogger, string) {
	if _, err := logging.ParseLevel(level); err != nil {
		fmt.Fprintf(stderr, "Warning: %v, using info\n", err)
		level = "info"
	}

	logger, err := logging.New(logging.Options{Level: level, Console: console, FilePath: logPath})
	if err == nil {
		return logger, logPath
	}

	fmt.Fprintf(stderr, "Warning: %v\n", err)
	logger, _ = logging.New(logging.Options{Level: level, Console: console})
	return logger, ""
}
