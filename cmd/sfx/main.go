// Command sfx builds and inspects self-extracting tool bundles.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/sfx/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sfx",
		Short: "Build self-extracting tool bundles",
		Long: `sfx packs a tool, its home directory and a project into a single
executable file. When run, the file extracts itself to a per-user directory
(only when its payload changed) and runs: <tool> run --robot robot.yaml.`,
		Version:       config.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newBuildCmd(), newInspectCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sfx %s\n", config.Version)
		},
	}
}
