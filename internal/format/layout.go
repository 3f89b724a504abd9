package format

// Archive layout and handoff conventions. The builder writes entries under
// these names and the launcher searches for them, so they are defined once.
const (
	// DefaultAppName names the per-application extraction directory when
	// neither the environment nor the build metadata provide one.
	DefaultAppName = "MyRccAssistant"

	// EnvArchiveDir is the archive prefix of the tool's home directory tree.
	EnvArchiveDir = ".rcc_home"

	// ProjectArchiveDir is the archive prefix of the project tree.
	ProjectArchiveDir = "robot"

	// DescriptorName is the project's entry-point descriptor.
	DescriptorName = "robot.yaml"

	// HomeEnvVar points the wrapped tool at its home/cache directory.
	HomeEnvVar = "ROBOCORP_HOME"

	// RunSubcommand and DescriptorFlag form the fixed invocation shape:
	// <tool> run --robot <descriptor>.
	RunSubcommand  = "run"
	DescriptorFlag = "--robot"

	// SidecarName is the fingerprint file kept inside the extraction target.
	SidecarName = ".payload_hash"
)

// DefaultToolNames are the tool executable names searched for when the build
// metadata does not name the tool.
var DefaultToolNames = []string{"rcc.exe", "rcc"}
