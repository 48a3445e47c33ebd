package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateHelper(); err != nil {
		return err
	}
	if err := c.validateBurn(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		return errors.New("paths.scratch_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ToolDir) == "" {
		return errors.New("paths.tool_dir must be set")
	}
	if !filepath.IsAbs(c.Paths.ToolDir) {
		return fmt.Errorf("paths.tool_dir must be absolute, got %q", c.Paths.ToolDir)
	}
	return nil
}

func (c *Config) validateHelper() error {
	if !filepath.IsAbs(c.Helper.SocketPath) {
		return fmt.Errorf("helper.socket_path must be absolute, got %q", c.Helper.SocketPath)
	}
	for _, uid := range c.Helper.AllowedUIDs {
		if uid < 0 {
			return fmt.Errorf("helper.allowed_uids contains invalid uid %d", uid)
		}
	}
	return nil
}

func (c *Config) validateBurn() error {
	if !strings.HasPrefix(c.Burn.Device, "/dev/") {
		return fmt.Errorf("burn.device must be a /dev path, got %q", c.Burn.Device)
	}
	if c.Burn.Speed <= 0 {
		return errors.New("burn.speed must be positive")
	}
	if c.Burn.MediaMiB <= 0 {
		return errors.New("burn.media_mib must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
