package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"kiln/internal/config"
	"kiln/internal/devices"
	"kiln/internal/history"
	"kiln/internal/logging"
	"kiln/internal/toolout"
)

// ErrRunInProgress is returned when a run is requested while another
// run owned by the same runner has not reached a terminal phase.
var ErrRunInProgress = errors.New("a run is already in progress")

// CancelledMessage is the terminal failure message for a cancelled run.
const CancelledMessage = "cancelled by user"

// Helper is the slice of the broker proxy the pipeline drives.
// *ipc.Proxy satisfies it.
type Helper interface {
	RunTool(ctx context.Context, executable string, args []string, workDir string) (string, int, error)
	RunToolWithProgress(ctx context.Context, executable string, args []string, workDir, logPath string) (int, string, error)
	Cancel(ctx context.Context) (bool, error)
}

// Progress is the latest numeric state reported by the active tool.
type Progress struct {
	Percent       float64
	WrittenMiB    int64
	TotalMiB      int64
	FifoPercent   int
	DevicePercent int
	Track         int
	Speed         string
	Simulate      bool
}

// Status is a point-in-time snapshot of a run.
type Status struct {
	RunID    string
	Kind     string
	Device   string
	Source   string
	Phase    Phase
	Progress Progress
	Warnings []string
	Started  time.Time
	Finished time.Time
}

// Runner executes workflows one at a time against a helper.
type Runner struct {
	cfg     *config.Config
	helper  Helper
	history *history.Store
	logger  *slog.Logger

	validateDevice func(string) error

	mu     sync.Mutex
	active *run
}

// NewRunner constructs a runner. The history store may be nil, in which
// case runs are not persisted.
func NewRunner(cfg *config.Config, helper Helper, store *history.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:            cfg,
		helper:         helper,
		history:        store,
		logger:         logger.With(logging.String(logging.FieldComponent, "pipeline")),
		validateDevice: devices.Validate,
	}
}

// SetDeviceValidator replaces the block-device check used during the
// validating stage. Tests substitute a stub so runs can target devices
// that do not exist on the build host.
func (r *Runner) SetDeviceValidator(fn func(string) error) {
	if fn != nil {
		r.validateDevice = fn
	}
}

// Status reports the most recent run's state, or an idle status when
// the runner has never started a run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	rn := r.active
	r.mu.Unlock()
	if rn == nil {
		return Status{Phase: Phase{Kind: PhaseIdle}}
	}
	return rn.snapshot()
}

// Cancel requests cooperative cancellation of the active run. When the
// run has already handed a tool to the helper, the helper's in-flight
// process is interrupted as well. Returns false if nothing was running.
func (r *Runner) Cancel(ctx context.Context) bool {
	r.mu.Lock()
	rn := r.active
	r.mu.Unlock()
	if rn == nil || rn.terminal() {
		return false
	}
	rn.cancelled.Store(true)
	rn.cancel()
	if rn.executing.Load() {
		if _, err := r.helper.Cancel(ctx); err != nil {
			r.logger.Warn("helper cancel failed", logging.Error(err),
				logging.String(logging.FieldRunID, rn.id))
		}
	}
	return true
}

// update is one message on a run's single-writer apply path. Exactly
// one of the fields is set; ack marks a synchronization barrier.
type update struct {
	phase   *Phase
	event   *toolout.Event
	failure string
	ack     chan struct{}
}

// run owns the mutable state of a single workflow execution. All
// writes flow through the updates channel and are applied by one
// goroutine; snapshot readers take the mutex.
type run struct {
	id     string
	kind   string
	device string
	source string

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	executing atomic.Bool

	updates chan update
	applied chan struct{}

	mu       sync.Mutex
	phase    Phase
	progress Progress
	warnings []string
	failure  string
	started  time.Time
	finished time.Time
}

func (r *Runner) newRun(ctx context.Context, kind, device, source string) (*run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil && !r.active.terminal() {
		return nil, ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	rn := &run{
		id:      uuid.NewString(),
		kind:    kind,
		device:  device,
		source:  source,
		ctx:     runCtx,
		cancel:  cancel,
		updates: make(chan update, 64),
		applied: make(chan struct{}),
		phase:   Phase{Kind: PhaseIdle},
		started: time.Now().UTC(),
	}
	go rn.apply()
	r.active = rn
	return rn, nil
}

// apply is the single writer for run state.
func (rn *run) apply() {
	defer close(rn.applied)
	for u := range rn.updates {
		if u.ack != nil {
			close(u.ack)
			continue
		}
		rn.mu.Lock()
		switch {
		case u.failure != "":
			if rn.failure == "" {
				rn.failure = u.failure
			}
		case u.phase != nil:
			rn.phase = *u.phase
		case u.event != nil:
			rn.applyEvent(u.event)
		}
		rn.mu.Unlock()
	}
}

// applyEvent folds a parser event into the progress snapshot. Called
// with the mutex held.
func (rn *run) applyEvent(ev *toolout.Event) {
	switch ev.Kind {
	case toolout.KindProgress:
		if ev.TotalMiB > 0 {
			rn.progress.WrittenMiB = ev.WrittenMiB
			rn.progress.TotalMiB = ev.TotalMiB
			rn.progress.Percent = float64(ev.WrittenMiB) / float64(ev.TotalMiB) * 100
		} else if ev.Percent > 0 {
			rn.progress.Percent = ev.Percent
		}
	case toolout.KindBuffers:
		rn.progress.FifoPercent = ev.FifoPercent
		rn.progress.DevicePercent = ev.DevicePercent
	case toolout.KindTrack:
		rn.progress.Track = ev.Track
	case toolout.KindSpeed:
		rn.progress.Speed = ev.Speed
		rn.progress.Simulate = ev.Simulate
	case toolout.KindWarning:
		rn.warnings = append(rn.warnings, ev.Message)
	case toolout.KindError:
		if rn.failure == "" {
			rn.failure = ev.Message
		}
	}
}

func (rn *run) setPhase(p Phase) {
	rn.updates <- update{phase: &p}
}

func (rn *run) sendEvent(ev toolout.Event) {
	rn.updates <- update{event: &ev}
}

func (rn *run) fail(message string) {
	if message == "" {
		return
	}
	rn.updates <- update{failure: message}
}

// barrier waits until every update queued so far has been applied.
func (rn *run) barrier() {
	ack := make(chan struct{})
	rn.updates <- update{ack: ack}
	<-ack
}

func (rn *run) cancelRequested() bool {
	return rn.cancelled.Load() || rn.ctx.Err() != nil
}

func (rn *run) failureMessage() string {
	rn.barrier()
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.failure
}

func (rn *run) terminal() bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.phase.Terminal()
}

func (rn *run) snapshot() Status {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return Status{
		RunID:    rn.id,
		Kind:     rn.kind,
		Device:   rn.device,
		Source:   rn.source,
		Phase:    rn.phase,
		Progress: rn.progress,
		Warnings: append([]string(nil), rn.warnings...),
		Started:  rn.started,
		Finished: rn.finished,
	}
}

// finish applies the terminal phase, stops the apply goroutine, and
// persists the run. A recorded failure always wins over completion.
func (r *Runner) finish(rn *run) Status {
	failure := rn.failureMessage()
	if rn.cancelRequested() && failure == "" {
		failure = CancelledMessage
	}
	terminal := Phase{Kind: PhaseCompleted}
	if failure != "" {
		terminal = Failed(failure)
	}
	rn.setPhase(terminal)
	rn.barrier()
	close(rn.updates)
	<-rn.applied
	rn.mu.Lock()
	rn.finished = time.Now().UTC()
	rn.mu.Unlock()
	rn.cancel()

	status := rn.snapshot()
	r.logger.Info("run finished",
		logging.String(logging.FieldRunID, rn.id),
		logging.String("kind", rn.kind),
		logging.String(logging.FieldStage, status.Phase.String()),
		logging.Duration("elapsed", status.Finished.Sub(status.Started)),
		logging.String(logging.FieldEventType, "run_finished"))
	r.record(status)
	return status
}

func (r *Runner) record(status Status) {
	if r.history == nil {
		return
	}
	rec := history.Record{
		RunID:      status.RunID,
		Kind:       status.Kind,
		Device:     status.Device,
		Source:     status.Source,
		Status:     history.StatusCompleted,
		WrittenMiB: status.Progress.WrittenMiB,
		StartedAt:  status.Started,
		FinishedAt: status.Finished,
	}
	if status.Phase.Kind == PhaseFailed {
		rec.Status = history.StatusFailed
		rec.Message = status.Phase.Message
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.history.Record(ctx, rec); err != nil {
		r.logger.Warn("failed to record run history",
			logging.Error(err),
			logging.String(logging.FieldRunID, status.RunID),
			logging.String(logging.FieldErrorHint, "Check that the history database is writable"))
	}
}

// scratchDir creates the per-run scratch directory.
func (r *Runner) scratchDir(rn *run) (string, error) {
	dir := filepath.Join(r.cfg.Paths.ScratchDir, "run-"+rn.id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	return dir, nil
}

// cleanup removes the run's scratch directory. It never promotes a
// cleanup problem into the run's failure message.
func (r *Runner) cleanup(rn *run, scratch string) {
	rn.setPhase(Phase{Kind: PhaseCleaningUp})
	if scratch == "" {
		return
	}
	if err := os.RemoveAll(scratch); err != nil {
		r.logger.Warn("scratch cleanup failed",
			logging.Error(err),
			logging.String(logging.FieldRunID, rn.id),
			logging.String("scratch", scratch))
	}
}

// unlockDevice issues the best-effort device unlock that follows an
// executing-stage failure. Its own failure is logged, never escalated.
func (r *Runner) unlockDevice(rn *run, workdir string) {
	if rn.cancelled.Load() {
		// Give an interrupted burner a moment to release the device.
		time.Sleep(time.Duration(r.cfg.Workflow.CancelGraceSeconds) * time.Second)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	output, code, err := r.helper.RunTool(ctx, "cdrdao", []string{"unlock", "--device", rn.device}, workdir)
	if err != nil || code != 0 {
		r.logger.Warn("device unlock failed",
			logging.String(logging.FieldRunID, rn.id),
			logging.String(logging.FieldDevice, rn.device),
			logging.Int("exit_code", code),
			logging.String("output", output),
			logging.Error(err))
	}
}
