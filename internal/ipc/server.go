package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"kiln/internal/broker"
	"kiln/internal/logging"
)

// Server exposes helper control via JSON-RPC over a Unix domain socket.
// Connections are authenticated through SO_PEERCRED before any request
// is served: root, the helper's own user, and configured UIDs may talk
// to the broker, everyone else is disconnected.
type Server struct {
	path        string
	broker      *broker.Broker
	logger      *slog.Logger
	allowedUIDs []int64
	listener    net.Listener
	rpcServer   *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServerOptions configures a helper IPC server.
type ServerOptions struct {
	// SocketPath is where the unix socket is created. Any existing
	// file at the path is removed first.
	SocketPath string
	// AllowedUIDs lists additional UIDs permitted to connect.
	AllowedUIDs []int64
	// OnShutdown is invoked once after a Shutdown request has been
	// acknowledged. Typically it stops the helper process.
	OnShutdown func()
}

// NewServer configures the IPC server for the given broker.
func NewServer(ctx context.Context, b *broker.Broker, opts ServerOptions, logger *slog.Logger) (*Server, error) {
	if b == nil {
		return nil, errors.New("ipc server requires broker")
	}
	if opts.SocketPath == "" {
		return nil, errors.New("ipc server requires socket path")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(opts.SocketPath); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", opts.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(opts.SocketPath, 0o660); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	svc := &service{broker: b, logger: logger}
	if opts.OnShutdown != nil {
		var once sync.Once
		shutdown := opts.OnShutdown
		svc.shutdown = func() { once.Do(shutdown) }
	}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:        opts.SocketPath,
		broker:      b,
		logger:      logger,
		allowedUIDs: append([]int64(nil), opts.AllowedUIDs...),
		listener:    listener,
		rpcServer:   rpcServer,
		ctx:         serverCtx,
		cancel:      cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("helper IPC listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "clients may fail to reach the helper"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the helper if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				if !s.authorize(c) {
					_ = c.Close()
					return
				}
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) authorize(conn net.Conn) bool {
	uid, err := peerUID(conn)
	if err != nil {
		s.logger.Warn("peer credential check failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_peer_rejected"))
		return false
	}
	if !peerAllowed(uid, s.allowedUIDs) {
		s.logger.Warn("peer rejected",
			logging.Int("uid", int(uid)),
			logging.String(logging.FieldEventType, "ipc_peer_rejected"),
			logging.String(logging.FieldErrorHint, "Add the UID to helper.allowed_uids to permit this client"))
		return false
	}
	return true
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale socket may block future helper starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	broker   *broker.Broker
	logger   *slog.Logger
	shutdown func()
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	resp.Version = s.broker.Ping()
	return nil
}

func (s *service) RunTool(req RunToolRequest, resp *RunToolResponse) error {
	s.log().Debug("run tool requested", logging.String(logging.FieldTool, req.Executable))
	output, code := s.broker.RunTool(req.Executable, req.Args, req.WorkDir)
	resp.Output = output
	resp.ExitCode = code
	return nil
}

func (s *service) RunToolWithProgress(req RunToolWithProgressRequest, resp *RunToolWithProgressResponse) error {
	s.log().Debug("run tool with progress requested",
		logging.String(logging.FieldTool, req.Executable),
		logging.String("log_path", req.LogPath))
	code, message := s.broker.RunToolWithProgress(req.Executable, req.Args, req.WorkDir, req.LogPath)
	resp.ExitCode = code
	resp.ErrorMessage = message
	return nil
}

func (s *service) Cancel(_ CancelRequest, resp *CancelResponse) error {
	resp.Cancelled = s.broker.CancelCurrent()
	s.log().Info("cancel requested",
		logging.Bool("cancelled", resp.Cancelled),
		logging.String(logging.FieldEventType, "helper_cancel"))
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	resp.ShuttingDown = true
	s.log().Info("shutdown requested",
		logging.String(logging.FieldEventType, "helper_shutdown"))
	if s.shutdown != nil {
		// Queue the shutdown so the reply reaches the client first.
		go s.shutdown()
	}
	return nil
}
