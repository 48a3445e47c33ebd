package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// VolumeLabel normalizes a user-supplied disc label: trimmed,
// title-cased, and never empty.
func VolumeLabel(raw string) string {
	label := strings.TrimSpace(raw)
	if label == "" {
		return "Untitled Disc"
	}
	return cases.Title(language.Und).String(label)
}

// writeCueSheet renders the cue-sheet descriptor the burner consumes.
// Every prepared track must exist on disk; a missing track means the
// conversion stage lied about its output and the run must not reach
// the device.
func writeCueSheet(path, label string, tracks []string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TITLE %q\n", VolumeLabel(label))
	for i, track := range tracks {
		if track == "" {
			return fmt.Errorf("track %d was never prepared", i+1)
		}
		if _, err := os.Stat(track); err != nil {
			return fmt.Errorf("prepared track %s: %w", filepath.Base(track), err)
		}
		fmt.Fprintf(&sb, "FILE %q WAVE\n", filepath.Base(track))
		fmt.Fprintf(&sb, "  TRACK %02d AUDIO\n", i+1)
		fmt.Fprintf(&sb, "    INDEX 01 00:00:00\n")
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write cue sheet: %w", err)
	}
	return nil
}
