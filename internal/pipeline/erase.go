package pipeline

import (
	"context"

	"kiln/internal/toolout"
)

// EraseRequest describes a blanking run for rewritable media.
type EraseRequest struct {
	Device string
	// All performs a full blank instead of the fast TOC-only blank.
	All bool
}

// Erase blanks a rewritable disc. It is the burn machine without the
// converting and descriptor stages.
func (r *Runner) Erase(ctx context.Context, req EraseRequest) (Status, error) {
	if req.Device == "" {
		req.Device = r.cfg.Burn.Device
	}
	rn, err := r.newRun(ctx, "erase", req.Device, "")
	if err != nil {
		return Status{}, err
	}

	var scratch string
	executeFailed := false

	rn.setPhase(Phase{Kind: PhaseValidating})
	if err := r.validateDevice(req.Device); err != nil {
		rn.fail(err.Error())
	} else if scratch, err = r.scratchDir(rn); err != nil {
		rn.fail(err.Error())
	} else if !rn.cancelRequested() {
		blank := "blank=fast"
		if req.All {
			blank = "blank=all"
		}
		args := []string{"-v", "gracetime=2", "dev=" + req.Device, blank}
		if err := r.execute(rn, scratch, "cdrecord", args, toolout.ParseCdrecord); err != nil {
			executeFailed = true
		}
	}

	if executeFailed {
		r.unlockDevice(rn, scratch)
	}
	r.cleanup(rn, scratch)
	return r.finish(rn), nil
}
