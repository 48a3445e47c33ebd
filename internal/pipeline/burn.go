package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kiln/internal/toolout"
)

// BurnRequest describes one disc-burn run. Zero values fall back to
// the configured burn defaults.
type BurnRequest struct {
	Inputs     []string
	Device     string
	Speed      int
	Simulate   bool
	EjectAfter bool
	Label      string
	MediaMiB   int64
}

// Burn converts the inputs, generates the cue-sheet descriptor, and
// writes the disc through the helper. The returned status carries the
// terminal phase; err is non-nil only when the run could not start.
func (r *Runner) Burn(ctx context.Context, req BurnRequest) (Status, error) {
	req = r.applyBurnDefaults(req)
	rn, err := r.newRun(ctx, "burn", req.Device, strings.Join(baseNames(req.Inputs), ", "))
	if err != nil {
		return Status{}, err
	}

	var scratch string
	executeFailed := false

	rn.setPhase(Phase{Kind: PhaseValidating})
	if err := r.validateBurn(req); err != nil {
		rn.fail(err.Error())
	} else if scratch, err = r.scratchDir(rn); err != nil {
		rn.fail(err.Error())
	} else if !rn.cancelRequested() {
		executeFailed = r.burnStages(rn, scratch, req)
	}

	if executeFailed {
		r.unlockDevice(rn, scratch)
	}
	r.cleanup(rn, scratch)
	return r.finish(rn), nil
}

// burnStages runs convert → descriptor → execute → eject. It reports
// whether the executing stage started and failed, which is the one case
// that warrants a device unlock.
func (r *Runner) burnStages(rn *run, scratch string, req BurnRequest) bool {
	tracks, err := r.convertInputs(rn, scratch, req.Inputs)
	if err != nil {
		rn.fail(err.Error())
		return false
	}
	if rn.cancelRequested() {
		return false
	}

	rn.setPhase(Phase{Kind: PhaseGeneratingDescriptor})
	cueSheet := filepath.Join(scratch, "disc.cue")
	if err := writeCueSheet(cueSheet, req.Label, tracks); err != nil {
		rn.fail(err.Error())
		return false
	}
	if rn.cancelRequested() {
		return false
	}

	if err := r.execute(rn, scratch, "cdrecord", burnArgs(req, cueSheet), toolout.ParseCdrecord); err != nil {
		return true
	}

	if req.EjectAfter && !rn.cancelRequested() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, code, err := r.helper.RunTool(ctx, "/usr/bin/eject", []string{req.Device}, scratch); err != nil || code != 0 {
			rn.sendEvent(toolout.Event{Kind: toolout.KindWarning, Message: "disc was burned but could not be ejected"})
		}
	}
	return false
}

func (r *Runner) applyBurnDefaults(req BurnRequest) BurnRequest {
	if req.Device == "" {
		req.Device = r.cfg.Burn.Device
	}
	if req.Speed <= 0 {
		req.Speed = r.cfg.Burn.Speed
	}
	if req.MediaMiB <= 0 {
		req.MediaMiB = r.cfg.Burn.MediaMiB
	}
	return req
}

func (r *Runner) validateBurn(req BurnRequest) error {
	if len(req.Inputs) == 0 {
		return fmt.Errorf("no input files to burn")
	}
	var totalBytes int64
	for _, input := range req.Inputs {
		info, err := os.Stat(input)
		if err != nil {
			return fmt.Errorf("input %s: %w", filepath.Base(input), err)
		}
		if info.IsDir() {
			return fmt.Errorf("input %s is a directory", filepath.Base(input))
		}
		totalBytes += info.Size()
	}
	// Rough capacity guard on the source material. The converted
	// tracks may be larger, but anything already over media size is a
	// guaranteed coaster.
	if totalMiB := totalBytes / (1 << 20); totalMiB > req.MediaMiB {
		return fmt.Errorf("inputs total %d MiB which exceeds the %d MiB media capacity", totalMiB, req.MediaMiB)
	}
	return r.validateDevice(req.Device)
}

func burnArgs(req BurnRequest, cueSheet string) []string {
	args := []string{
		"-v",
		"gracetime=2",
		"dev=" + req.Device,
		fmt.Sprintf("speed=%d", req.Speed),
		"-dao",
	}
	if req.Simulate {
		args = append(args, "-dummy")
	}
	return append(args, "cuefile="+cueSheet)
}

func baseNames(paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	return names
}
