package broker

// Version is reported by Ping so clients can detect protocol drift between
// the CLI and an already-installed helper.
const Version = "1.0.0"

// Reserved negative exit codes for failures that happen before or instead of
// running the requested tool. Real tools exit with non-negative codes, so the
// two ranges never collide.
const (
	// CodeInvalidExecutable rejects executables outside the allow-lists.
	CodeInvalidExecutable = -1
	// CodeInvalidArguments rejects forbidden characters and per-tool shape violations.
	CodeInvalidArguments = -2
	// CodeInvalidWorkDir rejects missing or traversal-tainted working directories.
	CodeInvalidWorkDir = -3
	// CodeInvalidLogPath rejects progress log paths outside the scratch directory.
	CodeInvalidLogPath = -4
	// CodeSpawnFailed covers processes that could not be started, and run
	// requests arriving while another process is already in flight.
	CodeSpawnFailed = -5
)
