package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kiln/internal/config"
	"kiln/internal/history"
	"kiln/internal/ipc"
	"kiln/internal/logging"
	"kiln/internal/pipeline"
)

func newBurnCommand(ctx *commandContext) *cobra.Command {
	var (
		device     string
		speed      int
		simulate   bool
		eject      bool
		label      string
		mediaMiB   int64
		skipChecks bool
	)

	cmd := &cobra.Command{
		Use:   "burn <audio-file> [audio-file...]",
		Short: "Convert audio files and burn them to disc",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applyBurnToggleDefaults(cmd, cfg, &simulate, &eject)

			inputs := make([]string, 0, len(args))
			for _, arg := range args {
				expanded, err := config.ExpandPath(arg)
				if err != nil {
					return fmt.Errorf("resolve input %s: %w", arg, err)
				}
				inputs = append(inputs, expanded)
			}
			req := pipeline.BurnRequest{
				Inputs:     inputs,
				Device:     device,
				Speed:      speed,
				Simulate:   simulate,
				EjectAfter: eject,
				Label:      label,
				MediaMiB:   mediaMiB,
			}
			return ctx.runWorkflow(cmd, skipChecks, func(runCtx context.Context, runner *pipeline.Runner) (pipeline.Status, error) {
				return runner.Burn(runCtx, req)
			})
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Burner device (defaults to burn.device from config)")
	cmd.Flags().IntVar(&speed, "speed", 0, "Write speed (defaults to burn.speed from config)")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Perform a dummy write without laser power")
	cmd.Flags().BoolVar(&eject, "eject", false, "Eject the disc after a successful burn")
	cmd.Flags().StringVarP(&label, "label", "l", "", "Disc title for the cue sheet")
	cmd.Flags().Int64Var(&mediaMiB, "media-mib", 0, "Media capacity override in MiB")
	cmd.Flags().BoolVar(&skipChecks, "skip-device-check", false, "Skip the block-device existence check")
	return cmd
}

// applyBurnToggleDefaults fills the simulate and eject toggles from the
// configured burn defaults when the user did not set the flag explicitly.
func applyBurnToggleDefaults(cmd *cobra.Command, cfg *config.Config, simulate, eject *bool) {
	if !cmd.Flags().Changed("simulate") {
		*simulate = cfg.Burn.Simulate
	}
	if !cmd.Flags().Changed("eject") {
		*eject = cfg.Burn.EjectAfter
	}
}

func newEraseCommand(ctx *commandContext) *cobra.Command {
	var (
		device     string
		all        bool
		skipChecks bool
	)

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Blank a rewritable disc",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := pipeline.EraseRequest{Device: device, All: all}
			return ctx.runWorkflow(cmd, skipChecks, func(runCtx context.Context, runner *pipeline.Runner) (pipeline.Status, error) {
				return runner.Erase(runCtx, req)
			})
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Burner device (defaults to burn.device from config)")
	cmd.Flags().BoolVar(&all, "all", false, "Blank the entire disc instead of the fast TOC-only blank")
	cmd.Flags().BoolVar(&skipChecks, "skip-device-check", false, "Skip the block-device existence check")
	return cmd
}

func newImageCommand(ctx *commandContext) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "image <source-dir> <output.iso>",
		Short: "Author an ISO-9660 image from a directory tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve source: %w", err)
			}
			output, err := config.ExpandPath(args[1])
			if err != nil {
				return fmt.Errorf("resolve output: %w", err)
			}
			req := pipeline.ImageRequest{SourceDir: source, OutputPath: output, Label: label}
			return ctx.runWorkflow(cmd, true, func(runCtx context.Context, runner *pipeline.Runner) (pipeline.Status, error) {
				return runner.Image(runCtx, req)
			})
		},
	}

	cmd.Flags().StringVarP(&label, "label", "l", "", "Volume label for the image")
	return cmd
}

// runWorkflow wires a proxy, history store, and runner together, renders
// progress while the run is live, and maps a failed run to a CLI error.
func (c *commandContext) runWorkflow(cmd *cobra.Command, skipDeviceCheck bool, fn func(context.Context, *pipeline.Runner) (pipeline.Status, error)) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	return c.withProxy(func(proxy *ipc.Proxy) error {
		// Progress rendering owns the terminal; structured logs go to
		// the log file only.
		logger, err := logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "kiln.log")},
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		store, err := history.Open(cfg.Paths.HistoryDB)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: run history unavailable: %v\n", err)
			store = nil
		} else {
			defer store.Close()
		}

		runner := pipeline.NewRunner(cfg, proxy, store, logger)
		if skipDeviceCheck {
			runner.SetDeviceValidator(func(string) error { return nil })
		}

		runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		go func() {
			<-runCtx.Done()
			runner.Cancel(context.Background())
		}()

		printerDone := make(chan struct{})
		go renderProgress(cmd.OutOrStdout(), runner, printerDone)

		status, err := fn(runCtx, runner)
		close(printerDone)
		if err != nil {
			return err
		}

		switch status.Phase.Kind {
		case pipeline.PhaseCompleted:
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s completed in %s\n",
				strings.ToUpper(status.Kind[:1])+status.Kind[1:],
				status.Finished.Sub(status.Started).Round(time.Second))
			for _, warning := range status.Warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", warning)
			}
			return nil
		default:
			return fmt.Errorf("%s failed: %s", status.Kind, status.Phase.Message)
		}
	})
}

// renderProgress prints the run's phase and progress whenever it
// changes, until done is closed.
func renderProgress(out io.Writer, runner *pipeline.Runner, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		status := runner.Status()
		line := formatStatusLine(status)
		if line == "" || line == last {
			continue
		}
		last = line
		fmt.Fprintln(out, line)
	}
}

func formatStatusLine(status pipeline.Status) string {
	switch status.Phase.Kind {
	case pipeline.PhaseIdle, pipeline.PhaseCompleted, pipeline.PhaseFailed:
		return ""
	case pipeline.PhaseConverting:
		return fmt.Sprintf("converting %d/%d", status.Phase.Step, status.Phase.Total)
	case pipeline.PhaseExecuting:
		p := status.Progress
		if p.TotalMiB > 0 {
			line := fmt.Sprintf("writing %d/%d MiB", p.WrittenMiB, p.TotalMiB)
			if p.FifoPercent > 0 {
				line += fmt.Sprintf(" (buffers %d%% %d%%)", p.FifoPercent, p.DevicePercent)
			}
			return line
		}
		if p.Percent > 0 {
			return fmt.Sprintf("writing %.1f%%", p.Percent)
		}
		return "executing"
	default:
		return status.Phase.String()
	}
}
