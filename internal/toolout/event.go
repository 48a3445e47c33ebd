package toolout

// Kind discriminates the event variants produced by the parsers.
type Kind int

const (
	// KindPhase reports that the tool entered a new phase of its operation.
	KindPhase Kind = iota + 1
	// KindProgress reports numeric progress, either written/total MiB,
	// a bare percentage, or elapsed time for streaming transcodes.
	KindProgress
	// KindBuffers reports the dual buffer fill percentages (fifo, device).
	KindBuffers
	// KindTrack announces the track or item index the tool is working on.
	KindTrack
	// KindSpeed announces the negotiated write speed and simulation mode.
	KindSpeed
	// KindWarning carries a recognized non-fatal diagnostic.
	KindWarning
	// KindError carries a fatal diagnostic mapped to an operator message.
	KindError
	// KindDone marks the tool's terminal success line.
	KindDone
)

// Phase names the operation phases the burn tools report.
type Phase string

const (
	PhasePause     Phase = "pause"
	PhaseBlank     Phase = "blank"
	PhaseCalibrate Phase = "calibrate"
	PhaseLeadIn    Phase = "lead-in"
	PhaseLeadOut   Phase = "lead-out"
	PhaseFlush     Phase = "flush"
	PhaseWrite     Phase = "write"
)

// Event is the tagged variant consumed by the pipeline. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind Kind

	Phase Phase

	WrittenMiB int64
	TotalMiB   int64
	Percent    float64

	FifoPercent   int
	DevicePercent int

	Track int

	Speed    string
	Simulate bool

	// ElapsedSeconds carries streamed transcode position (ffmpeg only).
	ElapsedSeconds float64

	Message string
}
