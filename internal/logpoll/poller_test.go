package logpoll_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"kiln/internal/logpoll"
)

type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) sink(lines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, lines...)
}

func (c *lineCollector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func appendTo(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString(data); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPollerDeliversLinesOnceInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.log")
	collector := &lineCollector{}

	poller := logpoll.New(path, 20*time.Millisecond, collector.sink, nil)
	poller.Start(context.Background())

	appendTo(t, path, "first\nsecond\n")
	time.Sleep(60 * time.Millisecond)
	appendTo(t, path, "third\n")
	time.Sleep(60 * time.Millisecond)
	poller.Stop()

	got := collector.snapshot()
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q (all: %v)", i, want[i], got[i], got)
		}
	}
}

func TestPollerStopFlushesTailWrittenBetweenTicks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.log")
	collector := &lineCollector{}

	poller := logpoll.New(path, time.Hour, collector.sink, nil)
	poller.Start(context.Background())

	appendTo(t, path, "late line\n")
	poller.Stop()

	got := collector.snapshot()
	if len(got) != 1 || got[0] != "late line" {
		t.Fatalf("expected final forced read to deliver the tail, got %v", got)
	}
}

func TestPollerStopFlushesUnterminatedFinalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.log")
	collector := &lineCollector{}

	poller := logpoll.New(path, time.Hour, collector.sink, nil)
	poller.Start(context.Background())

	// The last diagnostic before a tool dies frequently has no newline.
	appendTo(t, path, "Wrote 1 of 2 MB\ncdrecord: Cannot fixate disk")
	poller.Stop()

	got := collector.snapshot()
	want := []string{"Wrote 1 of 2 MB", "cdrecord: Cannot fixate disk"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPollerBuffersPartialLinesUntilNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.log")
	collector := &lineCollector{}

	poller := logpoll.New(path, 20*time.Millisecond, collector.sink, nil)
	poller.Start(context.Background())

	appendTo(t, path, "partial")
	time.Sleep(60 * time.Millisecond)
	if got := collector.snapshot(); len(got) != 0 {
		t.Fatalf("partial line must not be delivered, got %v", got)
	}

	appendTo(t, path, " completed\n")
	time.Sleep(60 * time.Millisecond)
	poller.Stop()

	got := collector.snapshot()
	if len(got) != 1 || got[0] != "partial completed" {
		t.Fatalf("expected reassembled line, got %v", got)
	}
}

func TestPollerSkipsEmptyFragments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.log")
	collector := &lineCollector{}

	poller := logpoll.New(path, 20*time.Millisecond, collector.sink, nil)
	poller.Start(context.Background())

	appendTo(t, path, "a\n\n\nb\n")
	time.Sleep(60 * time.Millisecond)
	poller.Stop()

	got := collector.snapshot()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected empty fragments discarded, got %v", got)
	}
}

func TestPollerToleratesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-yet.log")
	collector := &lineCollector{}

	poller := logpoll.New(path, 10*time.Millisecond, collector.sink, nil)
	poller.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	appendTo(t, path, "appeared\n")
	time.Sleep(40 * time.Millisecond)
	poller.Stop()

	got := collector.snapshot()
	if len(got) != 1 || got[0] != "appeared" {
		t.Fatalf("expected line after file creation, got %v", got)
	}
}
