// Command kiln-helper is the privileged broker daemon. It validates
// and executes allow-listed burner tooling on behalf of the kiln CLI,
// reachable only over a peer-verified unix socket. A shutdown request
// exits with status 0 so a supervising unit treats it as a clean stop.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"kiln/internal/broker"
	"kiln/internal/config"
	"kiln/internal/ipc"
	"kiln/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Printf("load config: %v", err)
		return 1
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Printf("ensure directories: %v", err)
		return 1
	}

	logger, err := logging.NewFile(cfg.Logging.Level, cfg.Logging.Format, filepath.Join(cfg.Paths.LogDir, "kiln-helper.log"))
	if err != nil {
		log.Printf("init logger: %v", err)
		return 1
	}
	logger = logger.With(logging.String(logging.FieldComponent, "helper"))

	for _, dir := range []string{filepath.Dir(cfg.Helper.LockPath), filepath.Dir(cfg.Helper.SocketPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("create runtime directory", logging.String("dir", dir), logging.Error(err))
			return 1
		}
	}

	lock := flock.New(cfg.Helper.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		logger.Error("acquire helper lock", logging.Error(err))
		return 1
	}
	if !locked {
		fmt.Fprintln(os.Stderr, "another kiln-helper instance is already running")
		return 1
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("release helper lock", logging.Error(err))
		}
	}()

	b, err := broker.New(cfg.Paths.ToolDir, cfg.Paths.ScratchDir, logger)
	if err != nil {
		logger.Error("init broker", logging.Error(err))
		return 1
	}

	shutdownRequested := make(chan struct{})
	srv, err := ipc.NewServer(ctx, b, ipc.ServerOptions{
		SocketPath:  cfg.Helper.SocketPath,
		AllowedUIDs: cfg.Helper.AllowedUIDs,
		OnShutdown:  func() { close(shutdownRequested) },
	}, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Error(err))
		return 1
	}
	srv.Serve()

	logger.Info("kiln-helper started",
		logging.String("socket", cfg.Helper.SocketPath),
		logging.String("lock", cfg.Helper.LockPath),
		logging.String(logging.FieldEventType, "helper_started"))

	select {
	case <-ctx.Done():
		logger.Info("kiln-helper stopping on signal")
	case <-shutdownRequested:
		logger.Info("kiln-helper stopping on shutdown request")
	}

	b.Shutdown(5 * time.Second)
	srv.Close()
	return 0
}
