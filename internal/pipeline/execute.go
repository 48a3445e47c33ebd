package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"kiln/internal/logging"
	"kiln/internal/logpoll"
	"kiln/internal/toolout"
)

// execute hands a tool to the helper's progress-streaming call and
// bridges its scratch log back through the given parser. It returns a
// non-nil error when the tool did not finish cleanly; the run's failure
// message is set through the apply path so a parser-reported error is
// never overwritten by the generic exit-code fallback.
func (r *Runner) execute(rn *run, scratch, executable string, args []string, parse func(string) []toolout.Event) error {
	rn.setPhase(Phase{Kind: PhaseExecuting})

	logPath := filepath.Join(scratch, executable+".log")
	interval := time.Duration(r.cfg.Workflow.PollIntervalMillis) * time.Millisecond
	poller := logpoll.New(logPath, interval, func(lines []string) {
		for _, line := range lines {
			for _, ev := range parse(line) {
				rn.sendEvent(ev)
			}
		}
	}, r.logger)
	poller.Start(rn.ctx)

	r.logger.Info("executing tool",
		logging.String(logging.FieldRunID, rn.id),
		logging.String(logging.FieldTool, executable),
		logging.String(logging.FieldDevice, rn.device))

	// The RPC deliberately outlives run cancellation: an interrupted
	// burner is stopped through the helper's cancel path and this call
	// returns once the process has actually exited.
	rn.executing.Store(true)
	// A cancel landing before this handoff saw executing=false and never
	// reached the helper. Re-check after publishing the flag so one side
	// always observes the other: either the tool is never handed over,
	// or Cancel sees executing=true and interrupts it.
	if rn.cancelled.Load() {
		rn.executing.Store(false)
		poller.Stop()
		rn.fail(CancelledMessage)
		return errors.New(CancelledMessage)
	}
	code, message, err := r.helper.RunToolWithProgress(context.Background(), executable, args, scratch, logPath)
	rn.executing.Store(false)
	poller.Stop()

	if err != nil {
		rn.fail(fmt.Sprintf("helper call failed: %v", err))
		return err
	}
	if code == 0 {
		return nil
	}

	var fallback string
	switch {
	case code < 0:
		fallback = fmt.Sprintf("helper rejected %s: %s", executable, message)
	case code > 128:
		fallback = fmt.Sprintf("%s was killed by signal %d", executable, code-128)
	default:
		fallback = fmt.Sprintf("%s exited with code %d", executable, code)
		if message != "" {
			fallback = fmt.Sprintf("%s exited with code %d: %s", executable, code, message)
		}
	}
	rn.fail(fallback)
	return fmt.Errorf("%s", fallback)
}
