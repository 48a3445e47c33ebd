package broker_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kiln/internal/broker"
	"kiln/internal/logging"
)

// newBroker builds a broker whose tool directory contains a fake ffmpeg
// shell script with the given body. Tests drive real processes through it.
func newBroker(t *testing.T, scriptBody string) (*broker.Broker, string, string) {
	t.Helper()
	toolDir := t.TempDir()
	scratchDir := t.TempDir()
	if scriptBody != "" {
		script := "#!/bin/sh\n" + scriptBody + "\n"
		if err := os.WriteFile(filepath.Join(toolDir, "ffmpeg"), []byte(script), 0o755); err != nil {
			t.Fatalf("write tool script: %v", err)
		}
	}
	b, err := broker.New(toolDir, scratchDir, logging.NewNop())
	if err != nil {
		t.Fatalf("broker.New: %v", err)
	}
	return b, toolDir, scratchDir
}

func TestPingReportsVersion(t *testing.T) {
	b, _, _ := newBroker(t, "")
	if b.Ping() != broker.Version {
		t.Fatalf("unexpected version: %q", b.Ping())
	}
}

func TestRunToolRejectsUnknownExecutableWithoutSpawning(t *testing.T) {
	b, toolDir, _ := newBroker(t, "")
	marker := filepath.Join(toolDir, "spawned")
	script := "#!/bin/sh\ntouch " + marker + "\n"
	if err := os.WriteFile(filepath.Join(toolDir, "evil"), []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	for _, executable := range []string{"evil", "/bin/sh", filepath.Join(toolDir, "evil"), "../../bin/sh"} {
		output, code := b.RunTool(executable, nil, toolDir)
		if code != broker.CodeInvalidExecutable {
			t.Fatalf("executable %q: expected code %d, got %d (%s)", executable, broker.CodeInvalidExecutable, code, output)
		}
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("rejected executable must never spawn")
	}
}

func TestRunToolRejectsForbiddenArgumentCharacters(t *testing.T) {
	// The script runs with the tool directory as its working directory.
	b, toolDir, _ := newBroker(t, "touch spawned")
	marker := filepath.Join(toolDir, "spawned")

	for _, arg := range []string{"a|b", "a;b", "a&b", "a`b", "a$b", "a>b", "a<b", "a\nb", "a\rb"} {
		output, code := b.RunTool("ffmpeg", []string{arg}, toolDir)
		if code != broker.CodeInvalidArguments {
			t.Fatalf("arg %q: expected code %d, got %d (%s)", arg, broker.CodeInvalidArguments, code, output)
		}
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("rejected arguments must never spawn")
	}
}

func TestRunToolEnforcesCdrdaoSubcommandVocabulary(t *testing.T) {
	b, toolDir, _ := newBroker(t, "")

	if _, code := b.RunTool("cdrdao", []string{"format"}, toolDir); code != broker.CodeInvalidArguments {
		t.Fatalf("unknown subcommand: expected %d, got %d", broker.CodeInvalidArguments, code)
	}
	if _, code := b.RunTool("cdrdao", nil, toolDir); code != broker.CodeInvalidArguments {
		t.Fatalf("missing subcommand: expected %d, got %d", broker.CodeInvalidArguments, code)
	}
	// Valid shape reaches the spawn step; the binary is absent, so the
	// request fails there instead of at validation.
	if _, code := b.RunTool("cdrdao", []string{"unlock", "dev=/dev/sr0"}, toolDir); code != broker.CodeSpawnFailed {
		t.Fatalf("valid subcommand: expected spawn failure %d, got %d", broker.CodeSpawnFailed, code)
	}
}

func TestRunToolEnforcesCdrecordArgumentShape(t *testing.T) {
	b, toolDir, _ := newBroker(t, "")

	if _, code := b.RunTool("cdrecord", []string{"dev=/dev/sr0", "weird"}, toolDir); code != broker.CodeInvalidArguments {
		t.Fatalf("bad prefix: expected %d, got %d", broker.CodeInvalidArguments, code)
	}
	if _, code := b.RunTool("cdrecord", []string{"speed=16", "-dao"}, toolDir); code != broker.CodeInvalidArguments {
		t.Fatalf("no device reference: expected %d, got %d", broker.CodeInvalidArguments, code)
	}
	if _, code := b.RunTool("cdrecord", []string{"dev=/dev/sr0", "speed=16", "-dao", "/tmp/track01.wav"}, toolDir); code != broker.CodeSpawnFailed {
		t.Fatalf("valid shape: expected spawn failure %d, got %d", broker.CodeSpawnFailed, code)
	}
}

func TestRunToolValidatesWorkingDirectory(t *testing.T) {
	b, toolDir, _ := newBroker(t, "exit 0")

	if _, code := b.RunTool("ffmpeg", nil, filepath.Join(toolDir, "missing")); code != broker.CodeInvalidWorkDir {
		t.Fatalf("missing dir: expected %d, got %d", broker.CodeInvalidWorkDir, code)
	}
	if _, code := b.RunTool("ffmpeg", nil, toolDir+"/../"+filepath.Base(toolDir)); code != broker.CodeInvalidWorkDir {
		t.Fatalf("traversal: expected %d, got %d", broker.CodeInvalidWorkDir, code)
	}
	file := filepath.Join(toolDir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, code := b.RunTool("ffmpeg", nil, file); code != broker.CodeInvalidWorkDir {
		t.Fatalf("non-directory: expected %d, got %d", broker.CodeInvalidWorkDir, code)
	}
}

func TestRunToolWithProgressValidatesLogPath(t *testing.T) {
	b, toolDir, scratchDir := newBroker(t, "exit 0")

	outside := filepath.Join(t.TempDir(), "progress.log")
	if code, _ := b.RunToolWithProgress("ffmpeg", nil, toolDir, outside); code != broker.CodeInvalidLogPath {
		t.Fatalf("outside scratch: expected %d, got %d", broker.CodeInvalidLogPath, code)
	}
	traversal := scratchDir + "/../" + filepath.Base(scratchDir) + "/progress.log"
	if code, _ := b.RunToolWithProgress("ffmpeg", nil, toolDir, traversal); code != broker.CodeInvalidLogPath {
		t.Fatalf("traversal: expected %d, got %d", broker.CodeInvalidLogPath, code)
	}
	if code, _ := b.RunToolWithProgress("ffmpeg", nil, toolDir, scratchDir); code != broker.CodeInvalidLogPath {
		t.Fatalf("scratch dir itself: expected %d, got %d", broker.CodeInvalidLogPath, code)
	}
}

func TestRunToolCapturesCombinedOutputAndExitCode(t *testing.T) {
	b, toolDir, _ := newBroker(t, "echo out; echo err >&2; exit 3")

	output, code := b.RunTool("ffmpeg", nil, toolDir)
	if code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
	if !strings.Contains(output, "out") || !strings.Contains(output, "err") {
		t.Fatalf("expected merged streams, got %q", output)
	}
}

func TestRunToolWithProgressNormalizesCarriageReturns(t *testing.T) {
	b, toolDir, scratchDir := newBroker(t, `printf 'Wrote 1 of 650 MB\rWrote 2 of 650 MB\r\nWriting completed successfully.\n'`)

	logPath := filepath.Join(scratchDir, "progress.log")
	code, message := b.RunToolWithProgress("ffmpeg", nil, toolDir, logPath)
	if code != 0 || message != "" {
		t.Fatalf("expected clean exit, got code=%d message=%q", code, message)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := "Wrote 1 of 650 MB\nWrote 2 of 650 MB\nWriting completed successfully.\n"
	if string(data) != want {
		t.Fatalf("log content %q, want %q", data, want)
	}
}

func TestRunToolWithProgressReportsSignalDeath(t *testing.T) {
	b, toolDir, scratchDir := newBroker(t, "kill -TERM $$")

	logPath := filepath.Join(scratchDir, "progress.log")
	code, message := b.RunToolWithProgress("ffmpeg", nil, toolDir, logPath)
	if code != 128+15 {
		t.Fatalf("expected 143 for SIGTERM death, got %d (%s)", code, message)
	}
	if !strings.Contains(message, "signal 15") {
		t.Fatalf("expected signal message, got %q", message)
	}
}

func TestCancelCurrentSignalsOnlyInFlightProcess(t *testing.T) {
	b, toolDir, _ := newBroker(t, "trap 'exit 0' INT; sleep 30 >/dev/null 2>&1 & wait")

	if b.CancelCurrent() {
		t.Fatal("cancel with no process in flight must report false")
	}

	done := make(chan int, 1)
	go func() {
		_, code := b.RunTool("ffmpeg", nil, toolDir)
		done <- code
	}()

	cancelled := false
	for i := 0; i < 100; i++ {
		if b.CancelCurrent() {
			cancelled = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !cancelled {
		t.Fatal("cancel never found the in-flight process")
	}

	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("expected trap-handled exit 0, got %d", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled process did not exit")
	}
}

func TestSecondCommandWhileBusyIsRejected(t *testing.T) {
	b, toolDir, _ := newBroker(t, "sleep 2")

	started := make(chan struct{})
	done := make(chan int, 1)
	go func() {
		close(started)
		_, code := b.RunTool("ffmpeg", nil, toolDir)
		done <- code
	}()
	<-started
	time.Sleep(200 * time.Millisecond)

	output, code := b.RunTool("ffmpeg", nil, toolDir)
	if code != broker.CodeSpawnFailed || !strings.Contains(output, "busy") {
		t.Fatalf("expected busy rejection, got code=%d output=%q", code, output)
	}

	if code := <-done; code != 0 {
		t.Fatalf("first command should finish cleanly, got %d", code)
	}
}

func TestBusyRejectionNeverSpawns(t *testing.T) {
	stateDir := t.TempDir()
	started := filepath.Join(stateDir, "started")
	b, toolDir, _ := newBroker(t, "touch "+started+"; sleep 2")

	// A second tool whose very first action leaves a marker. If a busy
	// rejection ever forks, the marker appears even though the caller
	// saw the -5 rejection.
	marker := filepath.Join(stateDir, "spawned")
	script := "#!/bin/sh\ntouch " + marker + "\n"
	if err := os.WriteFile(filepath.Join(toolDir, "mkisofs"), []byte(script), 0o755); err != nil {
		t.Fatalf("write tool script: %v", err)
	}

	done := make(chan int, 1)
	go func() {
		_, code := b.RunTool("ffmpeg", nil, toolDir)
		done <- code
	}()
	for {
		if _, err := os.Stat(started); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	for i := 0; i < 200; i++ {
		output, code := b.RunTool("mkisofs", nil, toolDir)
		if code != broker.CodeSpawnFailed || !strings.Contains(output, "busy") {
			t.Fatalf("attempt %d: expected busy rejection, got code=%d output=%q", i, code, output)
		}
	}

	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("a busy-rejected command must never execute")
	}
	<-done
}
