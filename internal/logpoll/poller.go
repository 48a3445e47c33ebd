// Package logpoll bridges a privileged process's file-based progress output
// to an in-process consumer. The helper streams tool output into a scratch
// log file; the poller tracks a byte offset into that file and delivers newly
// appended complete lines, in order, exactly once.
package logpoll

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"kiln/internal/logging"
)

// DefaultInterval is the tick between reads when the caller does not
// override it.
const DefaultInterval = 500 * time.Millisecond

// Poller reads newly appended lines from a growing log file.
type Poller struct {
	path     string
	interval time.Duration
	sink     func(lines []string)
	logger   *slog.Logger

	offset  int64
	partial []byte

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New constructs a poller delivering line batches to sink. The sink is
// invoked from the polling goroutine and from Stop; deliveries never overlap.
func New(path string, interval time.Duration, sink func(lines []string), logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		path:     path,
		interval: interval,
		sink:     sink,
		logger:   logging.NewComponentLogger(logger, "logpoll"),
	}
}

// Start launches the polling loop. It returns immediately; lines are
// delivered until Stop is called or the context is cancelled.
func (p *Poller) Start(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				p.poll()
			}
		}
	}()
}

// Stop halts the polling loop and performs one final forced read so output
// written between the last tick and process exit is not lost. A trailing
// fragment without its newline is flushed as the last line; tools often
// emit their final diagnostic without one.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.wg.Wait()
	p.poll()
	p.flushPartial()
}

// flushPartial delivers whatever is left in the partial-line buffer. Only
// called from Stop; after it the file will not be read again.
func (p *Poller) flushPartial() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.partial) == 0 {
		return
	}
	line := string(p.partial)
	p.partial = nil
	if p.sink != nil {
		p.sink([]string{line})
	}
}

// poll reads the bytes appended since the last read and delivers any
// complete lines. A trailing fragment without its newline stays buffered
// until the next read.
func (p *Poller) poll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := os.Open(p.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("open progress log failed",
				logging.String("path", p.path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "logpoll_open_failed"))
		}
		return
	}
	defer file.Close()

	if _, err := file.Seek(p.offset, io.SeekStart); err != nil {
		p.logger.Warn("seek progress log failed",
			logging.String("path", p.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "logpoll_seek_failed"))
		return
	}

	chunk, err := io.ReadAll(file)
	if err != nil {
		p.logger.Warn("read progress log failed",
			logging.String("path", p.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "logpoll_read_failed"))
		return
	}
	if len(chunk) == 0 {
		return
	}
	p.offset += int64(len(chunk))

	buf := append(p.partial, chunk...)
	var lines []string
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := string(buf[:idx])
		buf = buf[idx+1:]
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	p.partial = append([]byte(nil), buf...)

	if len(lines) > 0 && p.sink != nil {
		p.sink(lines)
	}
}
