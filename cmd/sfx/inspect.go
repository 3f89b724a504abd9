package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/sfx/internal/archive"
	"github.com/ZebulonRouseFrantzich/sfx/internal/cache"
	"github.com/ZebulonRouseFrantzich/sfx/internal/format"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the payload and build metadata of a built file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0])
		},
	}
}

func runInspect(cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()

	offset, err := format.FindPayloadOffset(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	fingerprint, err := cache.Fingerprint(path, offset)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "File:         %s\n", path)
	fmt.Fprintf(out, "Marker at:    %d\n", format.MarkerStart(offset))
	fmt.Fprintf(out, "Payload:      %d bytes at offset %d\n", info.Size()-offset, offset)
	fmt.Fprintf(out, "Fingerprint:  %s\n", fingerprint)

	meta, err := format.ReadMetadata(path, format.MarkerStart(offset))
	switch {
	case errors.Is(err, format.ErrNoMetadata):
		fmt.Fprintln(out, "Metadata:     none")
	case err != nil:
		fmt.Fprintf(out, "Metadata:     unreadable (%v)\n", err)
	default:
		match := "yes"
		if meta.PayloadFingerprint != fingerprint {
			match = "NO (recorded " + meta.PayloadFingerprint + ")"
		}
		fmt.Fprintf(out, "Match:        %s\n", match)

		body, err := yaml.Marshal(meta)
		if err != nil {
			return fmt.Errorf("render metadata: %w", err)
		}
		fmt.Fprintf(out, "\nMetadata:\n%s", indent(string(body)))
	}

	entries, err := archive.ListRange(path, offset)
	if err != nil {
		return fmt.Errorf("list payload: %w", err)
	}
	fmt.Fprintf(out, "\nEntries (%d):\n", len(entries))
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(out, "  %s  %10s  %s\n", e.Mode, "-", e.Name)
		} else {
			fmt.Fprintf(out, "  %s  %10d  %s\n", e.Mode, e.Size, e.Name)
		}
	}
	return nil
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ") + "\n"
}
