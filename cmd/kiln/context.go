package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"kiln/internal/config"
	"kiln/internal/ipc"
)

type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil && strings.TrimSpace(*c.socketFlag) != "" {
		return strings.TrimSpace(*c.socketFlag)
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Helper.SocketPath
	}
	return ""
}

// withProxy dials the helper, verifies it answers a ping, and hands the
// live proxy to fn.
func (c *commandContext) withProxy(fn func(*ipc.Proxy) error) error {
	proxy := ipc.NewProxy(c.socketPath())
	defer proxy.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := proxy.Ping(pingCtx); err != nil {
		return wrapHelperError(err, c.socketPath())
	}
	return fn(proxy)
}

func wrapHelperError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT) || os.IsNotExist(err):
		return fmt.Errorf("connect to helper: socket %s not found; start kiln-helper first", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to helper: socket %s refused the connection; verify kiln-helper is running", socket)
	case errors.Is(err, ipc.ErrHelperUnreachable):
		return fmt.Errorf("connect to helper at %s: %w", socket, err)
	default:
		return fmt.Errorf("helper: %w", err)
	}
}
