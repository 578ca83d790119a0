package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/inference-sim/dvfs-sim/sim"
	"github.com/inference-sim/dvfs-sim/sim/gem5"
)

// runCmd drives a live gem5 process through the adaptive loop
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the adaptive DVFS loop against gem5",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, h, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Simulator.Driver == "" {
			return fmt.Errorf("no driver script: set --driver or simulator.driver")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		client, err := gem5.NewClient(gem5.Options{
			Binary:  cfg.Simulator.Binary,
			Driver:  cfg.Simulator.Driver,
			OutDir:  cfg.Simulator.OutDir,
			Timeout: cfg.Simulator.Timeout,
		})
		if err != nil {
			return err
		}
		exitHook := atexit.Register(func() { _ = client.Close() })
		defer func() {
			_ = exitHook.Cancel()
			if err := client.Close(); err != nil {
				logrus.Warnf("gem5 exited with: %v", err)
			}
		}()

		if err := client.Configure(ctx, h); err != nil {
			return err
		}
		_, err = execute(ctx, cfg, h, client, cmd.OutOrStdout())
		return err
	},
}

// replayCmd drives the adaptive loop over recorded stats reports
var replayCmd = &cobra.Command{
	Use:   "replay <report-or-dir>...",
	Short: "Replay recorded gem5 stats dumps through the adaptive loop",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, h, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		replay, err := gem5.LoadReplay(cfg.StatsFile, cfg.Intervals.CompletionCause, args...)
		if err != nil {
			return err
		}
		_, err = execute(ctx, cfg, h, replay, cmd.OutOrStdout())
		return err
	},
}

// execute runs one adaptive loop over s, then prints and optionally saves
// the result.
func execute(ctx context.Context, cfg *sim.RunConfig, h *sim.Hierarchy, s sim.Simulator, out io.Writer) (*sim.RunResult, error) {
	runner, err := sim.BuildRunner(cfg, h, s, out)
	if err != nil {
		return nil, err
	}
	runID := sim.NewRunID()

	if monitorAddr != "" {
		monitor := NewMonitor(runID, h.Name, cfg.Control.Policy)
		srv, err := monitor.Serve(monitorAddr)
		if err != nil {
			return nil, err
		}
		defer srv.Close()
		runner.Observe(monitor.Publish)
		defer func() { monitor.Finish(runner.State()) }()
	}

	color.New(color.FgCyan, color.Bold).Fprintf(out, "Run %s: hierarchy %s, policy %s\n", runID, h.Name, cfg.Control.Policy)
	result, err := runner.Run(ctx)
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(out, "Run %s failed after %d intervals\n", runID, result.Intervals)
		return result, err
	}
	result.RunID = runID
	result.Finalize(h.Name)

	fmt.Fprintln(out)
	result.Print(out)
	if resultsPath != "" {
		if err := result.SaveResults(resultsPath); err != nil {
			return result, err
		}
	}
	return result, nil
}
