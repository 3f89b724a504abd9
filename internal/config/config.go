// Package config loads sfx settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Version is the sfx release, set at link time with
// -ldflags "-X github.com/ZebulonRouseFrantzich/sfx/internal/config.Version=...".
var Version = "dev"

// Launcher holds the settings a built launcher reads at startup.
type Launcher struct {
	// AppName overrides the application name from the build metadata.
	AppName string `env:"SFX_APP_NAME"`

	// DataRoot overrides the per-user data directory.
	DataRoot string `env:"SFX_DATA_ROOT"`

	// LogLevel is the console log threshold.
	LogLevel string `env:"SFX_LOG_LEVEL" envDefault:"info"`

	// KeepFailedStaging leaves a failed extraction's staging directory in
	// place for inspection.
	KeepFailedStaging bool `env:"SFX_KEEP_FAILED_STAGING"`

	// Executable overrides the path of the running launcher file.
	Executable string `env:"SFX_EXECUTABLE"`
}

// Builder holds environment defaults for the sfx command. Flags override
// them.
type Builder struct {
	LogLevel string `env:"SFX_LOG_LEVEL" envDefault:"info"`
	Launcher string `env:"SFX_LAUNCHER"`
	TempDir  string `env:"SFX_TEMP_DIR"`
}

// LoadLauncher reads Launcher settings from the environment.
func LoadLauncher() (Launcher, error) {
	var cfg Launcher
	if err := ParseEnv(&cfg); err != nil {
		return Launcher{LogLevel: "info"}, err
	}
	return cfg, nil
}

// LoadBuilder reads Builder settings from the environment.
func LoadBuilder() (Builder, error) {
	var cfg Builder
	if err := ParseEnv(&cfg); err != nil {
		return Builder{LogLevel: "info"}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
