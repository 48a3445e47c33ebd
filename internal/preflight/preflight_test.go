package preflight_test

import (
	"strings"
	"testing"

	"kiln/internal/preflight"
	"kiln/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckDirectoryAccess("Scratch directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass for %s: %s", dir, result.Detail)
	}

	result = preflight.CheckDirectoryAccess("Scratch directory", dir+"/missing")
	if result.Passed {
		t.Fatal("expected failure for missing directory")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckTool(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StubTool(t, cfg, "ffmpeg", "#!/bin/sh\nexit 0\n")

	result := preflight.CheckTool(cfg.Paths.ToolDir, "ffmpeg", false)
	if !result.Passed {
		t.Fatalf("expected pass: %s", result.Detail)
	}

	result = preflight.CheckTool(cfg.Paths.ToolDir, "cdrecord", false)
	if result.Passed {
		t.Fatal("expected failure for missing required tool")
	}

	result = preflight.CheckTool(cfg.Paths.ToolDir, "cdrdao", true)
	if !result.Passed {
		t.Fatalf("expected optional tool to pass when absent: %s", result.Detail)
	}
}

func TestRunAllCoversAllConcerns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := preflight.RunAll(cfg)

	names := make(map[string]bool, len(results))
	for _, result := range results {
		names[result.Name] = true
	}
	for _, want := range []string{"Scratch directory", "Log directory", "Tool ffmpeg", "Helper socket", "Burner device"} {
		if !names[want] {
			t.Errorf("RunAll missing check %q", want)
		}
	}
}
