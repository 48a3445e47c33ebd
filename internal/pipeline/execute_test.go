package pipeline

import (
	"context"
	"testing"

	"kiln/internal/testsupport"
	"kiln/internal/toolout"
)

// refusingHelper fails the test if any tool reaches the helper.
type refusingHelper struct {
	t *testing.T
}

func (h *refusingHelper) RunTool(context.Context, string, []string, string) (string, int, error) {
	h.t.Error("RunTool must not be called after cancellation")
	return "", 0, nil
}

func (h *refusingHelper) RunToolWithProgress(context.Context, string, []string, string, string) (int, string, error) {
	h.t.Error("RunToolWithProgress must not be called after cancellation")
	return 0, "", nil
}

func (h *refusingHelper) Cancel(context.Context) (bool, error) {
	return false, nil
}

func TestExecuteSkipsHelperWhenCancelBeatsHandoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	r := NewRunner(cfg, &refusingHelper{t: t}, nil, nil)

	rn, err := r.newRun(context.Background(), "burn", "/dev/sr0", "")
	if err != nil {
		t.Fatalf("newRun: %v", err)
	}

	// A cancel that lands between the stage's last check and the
	// executing handoff sets the flag but sees executing=false.
	rn.cancelled.Store(true)

	scratch := t.TempDir()
	err = r.execute(rn, scratch, "cdrecord", []string{"dev=/dev/sr0"}, toolout.ParseCdrecord)
	if err == nil || err.Error() != CancelledMessage {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if rn.executing.Load() {
		t.Fatal("executing flag must be cleared on the cancelled path")
	}

	status := r.finish(rn)
	if status.Phase.Kind != PhaseFailed || status.Phase.Message != CancelledMessage {
		t.Fatalf("expected failed(%q), got %s", CancelledMessage, status.Phase)
	}
}
