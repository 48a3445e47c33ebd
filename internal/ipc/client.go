package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"
)

// ErrHelperUnreachable indicates the helper socket could not be dialed.
var ErrHelperUnreachable = errors.New("helper unreachable")

// DialTimeout bounds how long a single connection attempt may take.
const DialTimeout = 2 * time.Second

// Proxy provides RPC access to the helper. It dials lazily, survives a
// dropped connection by reconnecting on the next call, and guarantees
// each request resolves exactly once even if the transport errors while
// a reply is in flight.
type Proxy struct {
	path string

	mu     sync.Mutex
	conn   net.Conn
	client *rpc.Client
}

// NewProxy returns a proxy for the helper socket at path. No connection
// is made until the first call.
func NewProxy(path string) *Proxy {
	return &Proxy{path: path}
}

// Close drops the current connection if one exists.
func (p *Proxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetLocked()
}

func (p *Proxy) resetLocked() error {
	var err error
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}

func (p *Proxy) ensureClient() (*rpc.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	conn, err := net.DialTimeout("unix", p.path, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHelperUnreachable, err)
	}
	p.conn = conn
	p.client = rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return p.client, nil
}

// completion delivers a call result exactly once. net/rpc signals the
// Done channel itself; the Once guards against a second resolution if
// the connection is torn down while the reply is pending.
type completion struct {
	once sync.Once
	ch   chan error
}

func newCompletion() *completion {
	return &completion{ch: make(chan error, 1)}
}

func (c *completion) resolve(err error) {
	c.once.Do(func() { c.ch <- err })
}

func (p *Proxy) call(ctx context.Context, method string, req, resp any) error {
	client, err := p.ensureClient()
	if err != nil {
		return err
	}

	done := newCompletion()
	call := client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	go func() {
		finished := <-call.Done
		done.resolve(finished.Error)
	}()

	select {
	case err := <-done.ch:
		if err != nil {
			p.dropIfBroken(err)
		}
		return err
	case <-ctx.Done():
		// The pending call is abandoned; drop the connection so a
		// stale reply cannot be misdelivered to a later request.
		p.mu.Lock()
		_ = p.resetLocked()
		p.mu.Unlock()
		return ctx.Err()
	}
}

func (p *Proxy) dropIfBroken(err error) {
	if errors.Is(err, rpc.ErrShutdown) || errors.Is(err, net.ErrClosed) {
		p.mu.Lock()
		_ = p.resetLocked()
		p.mu.Unlock()
	}
}

// Ping checks helper liveness and returns its protocol version. A
// failed attempt drops the cached connection and retries exactly once
// on a fresh one, so a helper restart does not surface as an error.
func (p *Proxy) Ping(ctx context.Context) (string, error) {
	var resp PingResponse
	if err := p.call(ctx, "Ping", PingRequest{}, &resp); err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		p.mu.Lock()
		_ = p.resetLocked()
		p.mu.Unlock()
		var retry PingResponse
		if err := p.call(ctx, "Ping", PingRequest{}, &retry); err != nil {
			return "", err
		}
		return retry.Version, nil
	}
	return resp.Version, nil
}

// RunTool executes an allow-listed tool to completion and returns its
// combined output and exit code. Negative exit codes are broker
// validation or spawn failures, not tool results.
func (p *Proxy) RunTool(ctx context.Context, executable string, args []string, workDir string) (string, int, error) {
	var resp RunToolResponse
	req := RunToolRequest{Executable: executable, Args: args, WorkDir: workDir}
	if err := p.call(ctx, "RunTool", req, &resp); err != nil {
		return "", 0, err
	}
	return resp.Output, resp.ExitCode, nil
}

// RunToolWithProgress executes a tool while streaming its output to the
// given log file, returning when the tool exits.
func (p *Proxy) RunToolWithProgress(ctx context.Context, executable string, args []string, workDir, logPath string) (int, string, error) {
	var resp RunToolWithProgressResponse
	req := RunToolWithProgressRequest{
		Executable: executable,
		Args:       args,
		WorkDir:    workDir,
		LogPath:    logPath,
	}
	if err := p.call(ctx, "RunToolWithProgress", req, &resp); err != nil {
		return 0, "", err
	}
	return resp.ExitCode, resp.ErrorMessage, nil
}

// Cancel interrupts the tool the helper is currently running, if any.
func (p *Proxy) Cancel(ctx context.Context) (bool, error) {
	var resp CancelResponse
	if err := p.call(ctx, "Cancel", CancelRequest{}, &resp); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

// Shutdown asks the helper process to exit.
func (p *Proxy) Shutdown(ctx context.Context) error {
	var resp ShutdownResponse
	return p.call(ctx, "Shutdown", ShutdownRequest{}, &resp)
}
