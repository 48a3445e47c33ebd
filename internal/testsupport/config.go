package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"kiln/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Poll and grace intervals are tightened so workflow tests run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ToolDir = filepath.Join(base, "tools")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "logs", "history.db")
	cfgVal.Helper.SocketPath = filepath.Join(base, "helper.sock")
	cfgVal.Helper.LockPath = filepath.Join(base, "helper.lock")
	cfgVal.Workflow.PollIntervalMillis = 10
	cfgVal.Workflow.ConvertParallelism = 1
	cfgVal.Workflow.CancelGraceSeconds = 0

	for _, dir := range []string{cfgVal.Paths.ScratchDir, cfgVal.Paths.LogDir, cfgVal.Paths.ToolDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDevice overrides the default burner device on the test config.
func WithDevice(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Burn.Device = path
	}
}

// WithConvertParallelism sets the converting stage's concurrency limit.
func WithConvertParallelism(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.ConvertParallelism = n
	}
}

// StubTool writes an executable shell script into the config's tool
// directory under the given name.
func StubTool(t testing.TB, cfg *config.Config, name, script string) string {
	t.Helper()
	path := filepath.Join(cfg.Paths.ToolDir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub tool %s: %v", name, err)
	}
	return path
}
