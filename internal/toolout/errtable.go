package toolout

import "strings"

// errorMapping pairs a tool output substring with the operator-facing
// message shown when the run fails. Order matters: the first match wins,
// so more specific substrings come before generic ones.
type errorMapping struct {
	substring string
	message   string
}

var burnErrorTable = []errorMapping{
	{"Cannot open SCSI driver", "The burning device could not be opened. Close other programs that may be using the drive and try again."},
	{"No disk / Wrong disk!", "No usable disc was found in the drive. Insert a blank disc and try again."},
	{"Cannot blank disk", "This disc cannot be erased. Use a rewritable (RW) disc instead."},
	{"Cannot fixate disk", "The disc could not be finalized and may be unreadable. Try burning at a lower speed."},
	{"Power calibration area error", "The drive failed laser calibration. The disc may be incompatible with this drive."},
	{"Device or resource busy", "The drive is busy with another operation. Wait for it to finish and try again."},
	{"Input/output error", "The drive reported a write failure. The disc may be scratched or damaged."},
	{"No space left on device", "The data does not fit on the inserted disc."},
}

// burnWarningTable lists the diagnostics that are surfaced as warnings.
// Lines outside this table are never promoted to warnings.
var burnWarningTable = []string{
	"Drive needs to reload the media",
	"Data may not fit on current disk",
	"Trying to write more than the maximum",
	"Cannot read first writable address",
	"Drive does not support Burnfree",
}

// MapBurnError translates a raw error line through the ordered substring
// table. Unmatched lines degrade to a generic message that still carries the
// raw diagnostic text.
func MapBurnError(line string) string {
	for _, entry := range burnErrorTable {
		if strings.Contains(line, entry.substring) {
			return entry.message
		}
	}
	return "Burning failed: " + strings.TrimSpace(line)
}

func matchBurnWarning(line string) (string, bool) {
	for _, substring := range burnWarningTable {
		if strings.Contains(line, substring) {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}
