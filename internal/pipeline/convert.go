package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"kiln/internal/logging"
	"kiln/internal/toolout"
)

// convertInputs transcodes each input into a burn-ready CD-audio WAV
// under the scratch directory. Sub-steps run with bounded parallelism;
// the first failing input aborts the stage and names itself in the
// error. Conversion runs unprivileged in this process, only the burn
// itself goes through the helper.
func (r *Runner) convertInputs(rn *run, scratch string, inputs []string) ([]string, error) {
	total := len(inputs)
	rn.setPhase(Converting(0, total))

	g, ctx := errgroup.WithContext(rn.ctx)
	g.SetLimit(r.cfg.Workflow.ConvertParallelism)

	tracks := make([]string, total)
	var completed atomic.Int32
	for i, input := range inputs {
		g.Go(func() error {
			if rn.cancelRequested() {
				return fmt.Errorf("%s", CancelledMessage)
			}
			track := filepath.Join(scratch, fmt.Sprintf("track%02d.wav", i+1))
			if err := r.convertOne(ctx, rn, input, track); err != nil {
				if rn.cancelRequested() {
					return fmt.Errorf("%s", CancelledMessage)
				}
				return fmt.Errorf("convert %s: %w", filepath.Base(input), err)
			}
			tracks[i] = track
			rn.setPhase(Converting(int(completed.Add(1)), total))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tracks, nil
}

// convertOne runs a single ffmpeg invocation with a progress stream on
// stdout, feeding a fresh parser session scoped to this invocation.
func (r *Runner) convertOne(ctx context.Context, rn *run, input, output string) error {
	ffmpeg := filepath.Join(r.cfg.Paths.ToolDir, "ffmpeg")
	args := []string{
		"-hide_banner", "-nostats", "-loglevel", "error",
		"-progress", "pipe:1",
		"-y", "-i", input,
		"-ar", "44100", "-ac", "2", "-sample_fmt", "s16",
		output,
	}

	cmd := exec.Command(ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	// Tear the process down if the run is cancelled mid-transcode.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
		case <-watchDone:
		}
	}()

	session := toolout.NewFFmpegSession()
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if ev, ok := session.Feed(scanner.Text()); ok {
			rn.sendEvent(ev)
		}
	}

	waitErr := cmd.Wait()
	close(watchDone)
	if waitErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		r.logger.Warn("transcode failed",
			logging.String(logging.FieldRunID, rn.id),
			logging.String(logging.FieldTool, "ffmpeg"),
			logging.String("input", input),
			logging.String("detail", detail))
		return fmt.Errorf("%s", detail)
	}
	return nil
}
