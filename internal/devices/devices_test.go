package devices_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kiln/internal/devices"
)

func TestValidateRejectsEmptyPath(t *testing.T) {
	if err := devices.Validate("  "); err == nil {
		t.Fatal("expected error for empty device path")
	}
}

func TestValidateRejectsPathOutsideDev(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sr0")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	err := devices.Validate(file)
	if err == nil {
		t.Fatal("expected error for path outside /dev")
	}
	if !strings.Contains(err.Error(), "/dev") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsNonBlockDevice(t *testing.T) {
	err := devices.Validate("/dev/null")
	if err == nil {
		t.Fatal("expected error for character device")
	}
	if !strings.Contains(err.Error(), "not a block device") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsMissingDevice(t *testing.T) {
	if err := devices.Validate("/dev/kiln-does-not-exist"); err == nil {
		t.Fatal("expected error for missing device")
	}
}
