package devices

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Device identifies a burner attached to the system.
type Device struct {
	// Path is the block device node, e.g. /dev/sr0.
	Path string `json:"path"`
	// Name is a human-readable drive description when known.
	Name string `json:"name"`
	// WriteSpeeds lists the speeds the drive advertises, highest first.
	WriteSpeeds []int `json:"write_speeds,omitempty"`
}

// Enumerator lists burner devices available on this host.
type Enumerator interface {
	Devices() ([]Device, error)
}

// Validate confirms the path names an existing block device. It does
// not open the device or probe for media.
func Validate(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("empty device path")
	}
	if !strings.HasPrefix(path, "/dev/") {
		return fmt.Errorf("device path %s must live under /dev", path)
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		return fmt.Errorf("%s is not a block device", path)
	}
	return nil
}
