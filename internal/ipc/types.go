package ipc

// ServiceName is the fixed, well-known RPC service the helper registers.
const ServiceName = "KilnHelper"

// PingRequest checks helper liveness.
type PingRequest struct{}

// PingResponse reports the helper protocol version.
type PingResponse struct {
	Version string `json:"version"`
}

// RunToolRequest executes one allow-listed command and captures its output.
type RunToolRequest struct {
	Executable string   `json:"executable"`
	Args       []string `json:"args"`
	WorkDir    string   `json:"work_dir"`
}

// RunToolResponse carries the merged output and exit code. Negative codes
// are broker-reserved sentinels; see the broker package.
type RunToolResponse struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

// RunToolWithProgressRequest executes one allow-listed command, streaming
// its output into LogPath.
type RunToolWithProgressRequest struct {
	Executable string   `json:"executable"`
	Args       []string `json:"args"`
	WorkDir    string   `json:"work_dir"`
	LogPath    string   `json:"log_path"`
}

// RunToolWithProgressResponse carries the exit code and, for failures, a
// diagnostic message.
type RunToolWithProgressResponse struct {
	ExitCode     int    `json:"exit_code"`
	ErrorMessage string `json:"error_message"`
}

// CancelRequest interrupts the in-flight process, if any.
type CancelRequest struct{}

// CancelResponse reports whether a process was actually signaled.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ShutdownRequest asks the helper to terminate.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	ShuttingDown bool `json:"shutting_down"`
}
