// Package platform describes the machine sfx runs on: operating system,
// architecture and Linux distribution, the per-user data root that
// launchers extract into, and free disk space below a path.
//
// The builder records the platform in the build metadata and exposes it to
// build recipes as a read-only Lua table.
package platform

import (
	"context"
	"strings"
)

// Canonical Linux distribution families.
const (
	FamilyDebian  = "debian"
	FamilyRHEL    = "rhel"
	FamilyFedora  = "fedora"
	FamilySUSE    = "suse"
	FamilyArch    = "arch"
	FamilyAlpine  = "alpine"
	FamilyUnknown = "unknown"
)

// Info contains platform detection information.
type Info struct {
	OS       string // runtime.GOOS
	Arch     string // normalized: "amd64", "arm64", or GOARCH as-is
	Platform string // distro ID (Linux only, e.g. "ubuntu")
	Family   string // canonical family (Linux only)
	Version  string // distro version (Linux only)
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// ExeSuffix returns ".exe" on Windows and "" elsewhere.
func (i *Info) ExeSuffix() string {
	if i.IsWindows() {
		return ".exe"
	}
	return ""
}

// String renders the platform as os/arch, followed by the distro and
// version on Linux when they are known. Example: "linux/amd64/ubuntu-22.04".
func (i *Info) String() string {
	var b strings.Builder
	b.WriteString(i.OS)
	b.WriteString("/")
	b.WriteString(i.Arch)
	if i.IsLinux() && i.Platform != "" {
		b.WriteString("/")
		b.WriteString(i.Platform)
		if i.Version != "" {
			b.WriteString("-")
			b.WriteString(i.Version)
		}
	}
	return b.String()
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
