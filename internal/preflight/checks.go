package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"kiln/internal/config"
	"kiln/internal/devices"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// bundledTools lists the executables the helper expects in the tool
// directory. ffmpeg is required; the rest back individual workflows.
var bundledTools = []struct {
	name     string
	optional bool
}{
	{name: "cdrecord"},
	{name: "ffmpeg"},
	{name: "mkisofs", optional: true},
	{name: "cdrdao", optional: true},
	{name: "readcd", optional: true},
}

// RunAll executes every applicable check for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	for _, tool := range bundledTools {
		results = append(results, CheckTool(cfg.Paths.ToolDir, tool.name, tool.optional))
	}
	results = append(results, CheckHelperSocket(cfg.Helper.SocketPath))
	results = append(results, CheckDevice(cfg.Burn.Device))
	return results
}

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckTool verifies a bundled executable is present and executable in
// the tool directory. Optional tools pass with a note when absent.
func CheckTool(toolDir, name string, optional bool) Result {
	label := "Tool " + name
	path := filepath.Join(toolDir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if optional {
				return Result{Name: label, Passed: true, Detail: "not installed (optional)"}
			}
			return Result{Name: label, Detail: fmt.Sprintf("%s missing", path)}
		}
		return Result{Name: label, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: label, Detail: fmt.Sprintf("%s is a directory", path)}
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return Result{Name: label, Detail: fmt.Sprintf("%s is not executable", path)}
	}
	return Result{Name: label, Passed: true, Detail: path}
}

// CheckHelperSocket reports whether the helper's socket exists. A
// missing socket usually means kiln-helper is not running.
func CheckHelperSocket(path string) Result {
	const name = "Helper socket"
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s not found; start kiln-helper", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if info.Mode()&os.ModeSocket == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s exists but is not a socket", path)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDevice reports whether the configured burner is a block device.
func CheckDevice(path string) Result {
	const name = "Burner device"
	if err := devices.Validate(path); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: path}
}
