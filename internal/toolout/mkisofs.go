package toolout

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	mkisofsPercentRe = regexp.MustCompile(`^([\d.]+)% done`)
	mkisofsExtentsRe = regexp.MustCompile(`^(\d+) extents written \((\d+) MB\)`)
)

var mkisofsErrorSubstrings = []string{
	"Permission denied",
	"No such file or directory",
	"No space left on device",
	"Unable to open disc image",
}

// ParseMkisofs maps one line of mkisofs output to zero or more events.
func ParseMkisofs(line string) []Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if m := mkisofsPercentRe.FindStringSubmatch(line); m != nil {
		percent, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return []Event{{Kind: KindProgress, Percent: percent}}
		}
	}

	if m := mkisofsExtentsRe.FindStringSubmatch(line); m != nil {
		written, _ := strconv.ParseInt(m[2], 10, 64)
		return []Event{{Kind: KindProgress, WrittenMiB: written, Message: m[1] + " extents written"}}
	}

	for _, substring := range mkisofsErrorSubstrings {
		if strings.Contains(line, substring) {
			return []Event{{Kind: KindError, Message: "Image creation failed: " + line}}
		}
	}

	return nil
}
