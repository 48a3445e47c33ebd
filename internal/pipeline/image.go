package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"kiln/internal/toolout"
)

// ImageRequest describes an ISO-authoring run.
type ImageRequest struct {
	SourceDir  string
	OutputPath string
	Label      string
}

// Image builds an ISO-9660 image from a directory tree through the
// helper's bundled mkisofs.
func (r *Runner) Image(ctx context.Context, req ImageRequest) (Status, error) {
	rn, err := r.newRun(ctx, "image", "", req.SourceDir)
	if err != nil {
		return Status{}, err
	}

	var scratch string

	rn.setPhase(Phase{Kind: PhaseValidating})
	if err := validateImage(req); err != nil {
		rn.fail(err.Error())
	} else if scratch, err = r.scratchDir(rn); err != nil {
		rn.fail(err.Error())
	} else if !rn.cancelRequested() {
		args := []string{
			"-o", req.OutputPath,
			"-V", VolumeLabel(req.Label),
			"-R", "-J",
			req.SourceDir,
		}
		// The executing stage's error path suffices here. mkisofs
		// holds no device lock, so no unlock follow-up is needed.
		_ = r.execute(rn, scratch, "mkisofs", args, toolout.ParseMkisofs)
	}

	r.cleanup(rn, scratch)
	return r.finish(rn), nil
}

func validateImage(req ImageRequest) error {
	info, err := os.Stat(req.SourceDir)
	if err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", req.SourceDir)
	}
	if req.OutputPath == "" {
		return fmt.Errorf("output path required")
	}
	if !filepath.IsAbs(req.OutputPath) {
		return fmt.Errorf("output path must be absolute")
	}
	parent, err := os.Stat(filepath.Dir(req.OutputPath))
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !parent.IsDir() {
		return fmt.Errorf("output parent %s is not a directory", filepath.Dir(req.OutputPath))
	}
	return nil
}
