package broker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"kiln/internal/logging"
)

// Broker validates and executes allow-listed external commands.
type Broker struct {
	toolDir    string
	scratchDir string
	logger     *slog.Logger
	slot       processSlot
}

// New constructs a broker constrained to the given tool and scratch
// directories. Both must be absolute so prefix containment checks are
// meaningful.
func New(toolDir, scratchDir string, logger *slog.Logger) (*Broker, error) {
	toolDir = filepath.Clean(strings.TrimSpace(toolDir))
	scratchDir = filepath.Clean(strings.TrimSpace(scratchDir))
	if !filepath.IsAbs(toolDir) {
		return nil, fmt.Errorf("tool directory must be absolute, got %q", toolDir)
	}
	if !filepath.IsAbs(scratchDir) {
		return nil, fmt.Errorf("scratch directory must be absolute, got %q", scratchDir)
	}
	return &Broker{
		toolDir:    toolDir,
		scratchDir: scratchDir,
		logger:     logging.NewComponentLogger(logger, "broker"),
	}, nil
}

// Ping reports the helper protocol version.
func (b *Broker) Ping() string {
	return Version
}

// RunTool executes one allow-listed command and captures its merged output.
// Validation and spawn failures are reported through the reserved negative
// codes with the diagnostic in place of the output.
func (b *Broker) RunTool(executable string, args []string, workdir string) (string, int) {
	path, toolName, verr := b.validateRequest(executable, args, workdir)
	if verr != nil {
		b.logger.Warn("command request rejected",
			logging.String(logging.FieldTool, executable),
			logging.Int("code", verr.code),
			logging.String("reason", verr.message),
			logging.String(logging.FieldEventType, "broker_request_rejected"))
		return verr.message, verr.code
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = workdir
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	code, spawnErr := b.runGuarded(cmd, toolName)
	if spawnErr != nil {
		return spawnErr.Error(), code
	}
	return combined.String(), code
}

// RunToolWithProgress executes one allow-listed command, streaming its merged
// output into logPath with carriage returns rewritten to newlines so one-line
// progress redraws become discrete, parseable lines. It returns after the
// process exits.
func (b *Broker) RunToolWithProgress(executable string, args []string, workdir, logPath string) (int, string) {
	path, toolName, verr := b.validateRequest(executable, args, workdir)
	if verr != nil {
		b.logger.Warn("progress command request rejected",
			logging.String(logging.FieldTool, executable),
			logging.Int("code", verr.code),
			logging.String("reason", verr.message),
			logging.String(logging.FieldEventType, "broker_request_rejected"))
		return verr.code, verr.message
	}
	resolvedLog, verr := b.validateLogPath(logPath)
	if verr != nil {
		b.logger.Warn("progress log path rejected",
			logging.String("log_path", logPath),
			logging.String("reason", verr.message),
			logging.String(logging.FieldEventType, "broker_request_rejected"))
		return verr.code, verr.message
	}

	logFile, err := os.OpenFile(resolvedLog, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return CodeSpawnFailed, fmt.Sprintf("open progress log: %v", err)
	}
	defer logFile.Close()

	writer := &crWriter{w: logFile}
	cmd := exec.Command(path, args...)
	cmd.Dir = workdir
	cmd.Stdout = writer
	cmd.Stderr = writer

	code, spawnErr := b.runGuarded(cmd, toolName)
	if spawnErr != nil {
		return code, spawnErr.Error()
	}
	if code > 128 {
		return code, fmt.Sprintf("%s killed by signal %d", toolName, code-128)
	}
	if code != 0 {
		return code, fmt.Sprintf("%s exited with status %d", toolName, code)
	}
	return 0, ""
}

// validateRequest runs the pre-spawn checks in contract order: executable,
// arguments, working directory.
func (b *Broker) validateRequest(executable string, args []string, workdir string) (string, string, *validationError) {
	path, verr := b.resolveExecutable(executable)
	if verr != nil {
		return "", "", verr
	}
	toolName := filepath.Base(path)
	if verr := validateArgs(toolName, args); verr != nil {
		return "", "", verr
	}
	if verr := validateWorkDir(workdir); verr != nil {
		return "", "", verr
	}
	return path, toolName, verr
}

// runGuarded claims the single process slot, starts the command, and waits
// for it. The slot is reserved before the spawn so a busy rejection never
// forks, and held for the full lifetime of the process so CancelCurrent
// always targets the right one.
func (b *Broker) runGuarded(cmd *exec.Cmd, toolName string) (int, error) {
	if !b.slot.reserve() {
		return CodeSpawnFailed, errors.New("helper busy: another command is already in flight")
	}
	defer b.slot.release()

	if err := cmd.Start(); err != nil {
		return CodeSpawnFailed, fmt.Errorf("spawn %s: %w", toolName, err)
	}
	b.slot.bind(cmd.Process)

	b.logger.Info("command started",
		logging.String(logging.FieldTool, toolName),
		logging.Int("pid", cmd.Process.Pid),
		logging.String(logging.FieldEventType, "broker_command_start"))

	start := time.Now()
	err := cmd.Wait()
	code := exitStatus(err)
	b.logger.Info("command finished",
		logging.String(logging.FieldTool, toolName),
		logging.Int("exit_code", code),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "broker_command_finish"))
	return code, nil
}

// CancelCurrent interrupts the in-flight process if one exists and reports
// whether anything was signaled.
func (b *Broker) CancelCurrent() bool {
	signaled := b.slot.signal(os.Interrupt)
	if signaled {
		b.logger.Info("in-flight command interrupted",
			logging.String(logging.FieldEventType, "broker_command_cancel"))
	}
	return signaled
}

// Shutdown terminates any in-flight process. The interrupt is escalated to a
// kill if the process does not exit within the grace period.
func (b *Broker) Shutdown(grace time.Duration) {
	if !b.slot.signal(os.Interrupt) {
		return
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if b.slot.empty() {
			return
		}
	}
	b.slot.signal(os.Kill)
}

// exitStatus maps a Wait error to the contract's exit code space: the tool's
// own status when it exited, 128+signal when it was killed.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return CodeSpawnFailed
}

// crWriter rewrites carriage returns to newlines on the way into the
// progress log. A lone \r becomes \n; \r\n collapses to a single \n even
// when split across writes.
type crWriter struct {
	w         io.Writer
	pendingCR bool
}

func (cw *crWriter) Write(p []byte) (int, error) {
	out := make([]byte, 0, len(p))
	for _, b := range p {
		if cw.pendingCR {
			cw.pendingCR = false
			if b == '\n' {
				continue
			}
		}
		if b == '\r' {
			out = append(out, '\n')
			cw.pendingCR = true
			continue
		}
		out = append(out, b)
	}
	if _, err := cw.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
