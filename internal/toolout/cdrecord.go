package toolout

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	cdrecordTrackRe    = regexp.MustCompile(`^Track (\d+):`)
	cdrecordProgressRe = regexp.MustCompile(`Wrote (\d+) of (\d+) MB`)
	cdrecordBuffersRe  = regexp.MustCompile(`\(Buffers (\d+)% (\d+)%\)`)
	cdrecordSpeedRe    = regexp.MustCompile(`Starting to write .* at speed ([\d.]+) in (real|dummy)`)
)

// cdrecordPhaseMarkers maps line substrings to the phase they announce.
// Scanned in order; the first match wins.
var cdrecordPhaseMarkers = []struct {
	substring string
	phase     Phase
}{
	{"Waiting for reader process", PhasePause},
	{"Blanking ", PhaseBlank},
	{"Performing OPC", PhaseCalibrate},
	{"Writing Leadin", PhaseLeadIn},
	{"Writing Leadout", PhaseLeadOut},
	{"Flushing cache", PhaseFlush},
	{"Fixating", PhaseFlush},
}

// ParseCdrecord maps one line of cdrecord output to zero or more events.
// A single line may yield several: a progress line also carries the buffer
// fill percentages.
func ParseCdrecord(line string) []Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var events []Event

	if m := cdrecordTrackRe.FindStringSubmatch(line); m != nil {
		track, _ := strconv.Atoi(m[1])
		events = append(events, Event{Kind: KindTrack, Track: track})
	}

	if m := cdrecordProgressRe.FindStringSubmatch(line); m != nil {
		written, _ := strconv.ParseInt(m[1], 10, 64)
		total, _ := strconv.ParseInt(m[2], 10, 64)
		events = append(events, Event{Kind: KindProgress, WrittenMiB: written, TotalMiB: total})
	}

	if m := cdrecordBuffersRe.FindStringSubmatch(line); m != nil {
		fifo, _ := strconv.Atoi(m[1])
		device, _ := strconv.Atoi(m[2])
		events = append(events, Event{Kind: KindBuffers, FifoPercent: fifo, DevicePercent: device})
	}

	if m := cdrecordSpeedRe.FindStringSubmatch(line); m != nil {
		events = append(events, Event{Kind: KindSpeed, Speed: m[1], Simulate: m[2] == "dummy"})
	}

	for _, marker := range cdrecordPhaseMarkers {
		if strings.Contains(line, marker.substring) {
			events = append(events, Event{Kind: KindPhase, Phase: marker.phase})
			break
		}
	}

	if strings.Contains(line, "Writing completed successfully") {
		events = append(events, Event{Kind: KindDone})
	}

	if message, ok := matchBurnWarning(line); ok {
		events = append(events, Event{Kind: KindWarning, Message: message})
	}

	if isCdrecordErrorLine(line) {
		events = append(events, Event{Kind: KindError, Message: MapBurnError(line)})
	}

	return events
}

// isCdrecordErrorLine recognizes fatal diagnostics. cdrecord prefixes its own
// failures with the program name; table entries additionally catch kernel
// errno text passed through verbatim.
func isCdrecordErrorLine(line string) bool {
	for _, entry := range burnErrorTable {
		if strings.Contains(line, entry.substring) {
			return true
		}
	}
	if !strings.HasPrefix(line, "cdrecord: ") {
		return false
	}
	rest := line[len("cdrecord: "):]
	return strings.Contains(rest, "Cannot") || strings.Contains(rest, "error") || strings.Contains(rest, "failed")
}
