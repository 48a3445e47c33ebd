package toolout

import (
	"regexp"
	"strconv"
	"strings"
)

// cdrdao reports everything on a single combined line:
//
//	Wrote 123 of 650 MB (buffers 98% 95%) 4.1x
//
// with separate begin/finish markers and ERROR:/WARNING: prefixed
// diagnostics.
var cdrdaoProgressRe = regexp.MustCompile(`^Wrote (\d+) of (\d+) MB \(buffers (\d+)% (\d+)%\)(?: ([\d.]+)x)?`)

// ParseCdrdao maps one line of cdrdao output to zero or more events.
func ParseCdrdao(line string) []Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if m := cdrdaoProgressRe.FindStringSubmatch(line); m != nil {
		written, _ := strconv.ParseInt(m[1], 10, 64)
		total, _ := strconv.ParseInt(m[2], 10, 64)
		fifo, _ := strconv.Atoi(m[3])
		device, _ := strconv.Atoi(m[4])
		events := []Event{
			{Kind: KindProgress, WrittenMiB: written, TotalMiB: total},
			{Kind: KindBuffers, FifoPercent: fifo, DevicePercent: device},
		}
		if m[5] != "" {
			events = append(events, Event{Kind: KindSpeed, Speed: m[5]})
		}
		return events
	}

	switch {
	case strings.HasPrefix(line, "Starting write"):
		return []Event{{Kind: KindPhase, Phase: PhaseWrite}}
	case strings.Contains(line, "Writing finished successfully"):
		return []Event{{Kind: KindDone}}
	case strings.HasPrefix(line, "ERROR: "):
		return []Event{{Kind: KindError, Message: MapBurnError(strings.TrimPrefix(line, "ERROR: "))}}
	case strings.HasPrefix(line, "WARNING: "):
		return []Event{{Kind: KindWarning, Message: strings.TrimPrefix(line, "WARNING: ")}}
	}

	return nil
}
