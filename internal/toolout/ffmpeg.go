package toolout

import (
	"strconv"
	"strings"
)

// FFmpegSession accumulates the multi-line key=value progress records ffmpeg
// emits with -progress. A session is scoped to one invocation and must not be
// shared across invocations: the accumulated fields describe a single stream.
type FFmpegSession struct {
	elapsedSeconds float64
	speed          string
}

// NewFFmpegSession returns a session ready for the first line of a stream.
func NewFFmpegSession() *FFmpegSession {
	return &FFmpegSession{}
}

// Feed consumes one line. Most lines only update accumulated state and return
// no event. A "progress=continue" terminator flushes the accumulated values
// as a progress event; "progress=end" yields the completion event regardless
// of what was accumulated.
func (s *FFmpegSession) Feed(line string) (Event, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return Event{}, false
	}
	value = strings.TrimSpace(value)

	switch strings.TrimSpace(key) {
	case "out_time_us":
		if micros, err := strconv.ParseInt(value, 10, 64); err == nil {
			s.elapsedSeconds = float64(micros) / 1e6
		}
	case "speed":
		s.speed = value
	case "progress":
		if value == "end" {
			return Event{Kind: KindDone}, true
		}
		return Event{
			Kind:           KindProgress,
			ElapsedSeconds: s.elapsedSeconds,
			Speed:          s.speed,
		}, true
	}
	return Event{}, false
}
