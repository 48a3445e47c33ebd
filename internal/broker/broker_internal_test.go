package broker

import (
	"bytes"
	"os"
	"os/exec"
	"testing"
)

func TestCRWriterRewritesCarriageReturns(t *testing.T) {
	cases := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"lone cr", []string{"Wrote 1 MB\rWrote 2 MB\r"}, "Wrote 1 MB\nWrote 2 MB\n"},
		{"crlf collapses", []string{"line one\r\nline two\r\n"}, "line one\nline two\n"},
		{"crlf split across writes", []string{"line one\r", "\nline two\n"}, "line one\nline two\n"},
		{"cr then text across writes", []string{"progress\r", "more"}, "progress\nmore"},
		{"plain text untouched", []string{"hello\n"}, "hello\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			writer := &crWriter{w: &buf}
			for _, chunk := range tc.chunks {
				n, err := writer.Write([]byte(chunk))
				if err != nil {
					t.Fatalf("write: %v", err)
				}
				if n != len(chunk) {
					t.Fatalf("short write: %d of %d", n, len(chunk))
				}
			}
			if buf.String() != tc.want {
				t.Fatalf("got %q, want %q", buf.String(), tc.want)
			}
		})
	}
}

func TestProcessSlotSingleOccupancy(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	var slot processSlot
	if !slot.empty() {
		t.Fatal("fresh slot must be empty")
	}
	if !slot.reserve() {
		t.Fatal("reserve on empty slot must succeed")
	}
	if slot.reserve() {
		t.Fatal("reserve on occupied slot must fail")
	}

	// Reserved but not yet bound: there is nothing to signal.
	if slot.signal(os.Interrupt) {
		t.Fatal("signal on an unbound reservation must report false")
	}
	if slot.empty() {
		t.Fatal("a reservation without a process must still occupy the slot")
	}

	slot.bind(cmd.Process)
	if !slot.signal(os.Interrupt) {
		t.Fatal("signal on a bound slot must succeed")
	}

	slot.release()
	if !slot.empty() {
		t.Fatal("release must free the slot")
	}
	if slot.signal(os.Interrupt) {
		t.Fatal("signal on empty slot must report false")
	}
}
