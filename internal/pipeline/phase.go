package pipeline

import "fmt"

// PhaseKind enumerates the states of the run machine.
type PhaseKind int

const (
	PhaseIdle PhaseKind = iota
	PhaseValidating
	PhaseConverting
	PhaseGeneratingDescriptor
	PhaseExecuting
	PhaseCleaningUp
	PhaseCompleted
	PhaseFailed
)

// String returns the operator-facing name for the phase kind.
func (k PhaseKind) String() string {
	switch k {
	case PhaseIdle:
		return "idle"
	case PhaseValidating:
		return "validating"
	case PhaseConverting:
		return "converting"
	case PhaseGeneratingDescriptor:
		return "generating-descriptor"
	case PhaseExecuting:
		return "executing"
	case PhaseCleaningUp:
		return "cleaning-up"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Phase is one state of a run. Step and Total are set only while
// converting; Message only when failed.
type Phase struct {
	Kind    PhaseKind
	Step    int
	Total   int
	Message string
}

// Converting returns the converting phase for sub-step i of n.
func Converting(i, n int) Phase {
	return Phase{Kind: PhaseConverting, Step: i, Total: n}
}

// Failed returns the terminal failure phase carrying the run's message.
func Failed(message string) Phase {
	return Phase{Kind: PhaseFailed, Message: message}
}

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	return p.Kind == PhaseCompleted || p.Kind == PhaseFailed
}

// String renders the phase for logs and status output.
func (p Phase) String() string {
	switch p.Kind {
	case PhaseConverting:
		return fmt.Sprintf("converting(%d/%d)", p.Step, p.Total)
	case PhaseFailed:
		if p.Message != "" {
			return fmt.Sprintf("failed(%s)", p.Message)
		}
		return "failed"
	default:
		return p.Kind.String()
	}
}
