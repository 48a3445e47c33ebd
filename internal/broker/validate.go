package broker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// forbiddenArgChars are rejected in every argument regardless of tool. The
// set must stay byte-for-byte stable: it is a compatibility contract with
// installed helpers.
const forbiddenArgChars = "|;&`$><\n\r"

// bundledTools are the executables shipped in the tool directory. Requests
// may name them bare or by their full path under the tool directory.
var bundledTools = map[string]struct{}{
	"cdrecord": {},
	"cdrdao":   {},
	"mkisofs":  {},
	"readcd":   {},
	"ffmpeg":   {},
}

// systemExecutables are the only absolute paths accepted outside the tool
// directory.
var systemExecutables = map[string]struct{}{
	"/usr/bin/eject": {},
	"/sbin/eject":    {},
}

// cdrdaoSubcommands is the fixed vocabulary accepted as cdrdao's first
// argument.
var cdrdaoSubcommands = map[string]struct{}{
	"write":    {},
	"copy":     {},
	"blank":    {},
	"unlock":   {},
	"simulate": {},
	"read-cd":  {},
}

// rawDeviceArgPrefixes is the fixed prefix set every cdrecord/readcd
// argument must match.
var rawDeviceArgPrefixes = []string{
	"dev=",
	"speed=",
	"gracetime=",
	"blank=",
	"driveropts=",
	"cuefile=",
	"textfile=",
	"fs=",
	"f=",
	"-",
}

// validationError carries the sentinel code and diagnostic for a rejected
// request.
type validationError struct {
	code    int
	message string
}

func (e *validationError) Error() string { return e.message }

func reject(code int, format string, args ...any) *validationError {
	return &validationError{code: code, message: fmt.Sprintf(format, args...)}
}

// resolveExecutable validates the executable identity and returns the
// absolute path to spawn. Bundled tool names resolve under the tool
// directory; everything else must match the fixed system path set exactly.
func (b *Broker) resolveExecutable(executable string) (string, *validationError) {
	executable = strings.TrimSpace(executable)
	if executable == "" {
		return "", reject(CodeInvalidExecutable, "executable name required")
	}

	if !strings.ContainsRune(executable, os.PathSeparator) {
		if _, ok := bundledTools[executable]; !ok {
			return "", reject(CodeInvalidExecutable, "executable %q is not an allowed tool", executable)
		}
		return filepath.Join(b.toolDir, executable), nil
	}

	cleaned := filepath.Clean(executable)
	if _, ok := systemExecutables[cleaned]; ok {
		return cleaned, nil
	}
	if filepath.Dir(cleaned) == b.toolDir {
		if _, ok := bundledTools[filepath.Base(cleaned)]; ok {
			return cleaned, nil
		}
	}
	return "", reject(CodeInvalidExecutable, "executable path %q is not allowed", executable)
}

// validateArgs applies the generic forbidden-character check followed by the
// per-tool-family shape rules.
func validateArgs(toolName string, args []string) *validationError {
	for _, arg := range args {
		if strings.ContainsAny(arg, forbiddenArgChars) {
			return reject(CodeInvalidArguments, "argument %q contains a forbidden character", arg)
		}
	}

	switch toolName {
	case "cdrdao":
		if len(args) == 0 {
			return reject(CodeInvalidArguments, "cdrdao requires a subcommand")
		}
		if _, ok := cdrdaoSubcommands[args[0]]; !ok {
			return reject(CodeInvalidArguments, "cdrdao subcommand %q is not allowed", args[0])
		}
	case "cdrecord", "readcd":
		deviceSeen := false
		for _, arg := range args {
			if !matchesRawDevicePrefix(arg) {
				return reject(CodeInvalidArguments, "argument %q does not match the allowed %s argument shape", arg, toolName)
			}
			if referencesBlockDevice(arg) {
				deviceSeen = true
			}
		}
		if !deviceSeen {
			return reject(CodeInvalidArguments, "%s requires an argument referencing a raw block device", toolName)
		}
	}
	return nil
}

func matchesRawDevicePrefix(arg string) bool {
	for _, prefix := range rawDeviceArgPrefixes {
		if strings.HasPrefix(arg, prefix) {
			return true
		}
	}
	// Track payloads are passed as absolute file paths.
	return strings.HasPrefix(arg, "/")
}

func referencesBlockDevice(arg string) bool {
	if strings.HasPrefix(arg, "dev=") {
		arg = strings.TrimPrefix(arg, "dev=")
	}
	return strings.HasPrefix(arg, "/dev/")
}

// validateWorkDir requires an existing directory whose path carries no
// parent-traversal segments.
func validateWorkDir(workdir string) *validationError {
	if strings.TrimSpace(workdir) == "" {
		return reject(CodeInvalidWorkDir, "working directory required")
	}
	if containsTraversal(workdir) {
		return reject(CodeInvalidWorkDir, "working directory %q contains parent traversal", workdir)
	}
	info, err := os.Stat(workdir)
	if err != nil {
		return reject(CodeInvalidWorkDir, "working directory %q: %v", workdir, err)
	}
	if !info.IsDir() {
		return reject(CodeInvalidWorkDir, "working directory %q is not a directory", workdir)
	}
	return nil
}

// validateLogPath requires the standardized path to land under the scratch
// directory. The raw request path must also be traversal-free so that a
// crafted path cannot smuggle its way into the allowed prefix.
func (b *Broker) validateLogPath(logPath string) (string, *validationError) {
	if strings.TrimSpace(logPath) == "" {
		return "", reject(CodeInvalidLogPath, "log path required")
	}
	if containsTraversal(logPath) {
		return "", reject(CodeInvalidLogPath, "log path %q contains parent traversal", logPath)
	}
	absolute, err := filepath.Abs(filepath.Clean(logPath))
	if err != nil {
		return "", reject(CodeInvalidLogPath, "log path %q: %v", logPath, err)
	}
	if absolute != b.scratchDir && !strings.HasPrefix(absolute, b.scratchDir+string(os.PathSeparator)) {
		return "", reject(CodeInvalidLogPath, "log path %q is outside the scratch directory", logPath)
	}
	if absolute == b.scratchDir {
		return "", reject(CodeInvalidLogPath, "log path %q is the scratch directory itself", logPath)
	}
	return absolute, nil
}

func containsTraversal(path string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}
