package broker

import (
	"os"
	"sync"
)

// processSlot holds the helper's single in-flight command. All
// cross-request shared mutable state lives here, behind one mutex. The
// slot is reserved before the process is spawned so a busy broker never
// forks a command it is about to reject.
type processSlot struct {
	mu   sync.Mutex
	held bool
	proc *os.Process
}

// reserve claims the slot ahead of the spawn. It returns false when
// another command is already in flight; the caller must then reject the
// request without starting a process.
func (s *processSlot) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		return false
	}
	s.held = true
	return true
}

// bind records the spawned process in the reserved slot so signal can
// reach it.
func (s *processSlot) bind(proc *os.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc = proc
}

// release frees the slot after the process exited or failed to spawn.
func (s *processSlot) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
	s.proc = nil
}

// empty reports whether no command currently occupies the slot.
func (s *processSlot) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.held
}

// signal delivers sig to the in-flight process. It reports whether anything
// was actually signaled.
func (s *processSlot) signal(sig os.Signal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return false
	}
	return s.proc.Signal(sig) == nil
}
