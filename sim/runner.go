package sim

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/dvfs-sim/sim/trace"
)

// RunState is the state of an IntervalRunner.
type RunState string

const (
	StateRunning         RunState = "running"
	StateCompleted       RunState = "completed"        // workload exited
	StateBudgetExhausted RunState = "budget-exhausted" // interval budget used up
)

// IntervalObserver is notified after every interval with its trace record.
type IntervalObserver func(record trace.IntervalRecord)

// IntervalRunner drives the advance / read / derive / decide / apply loop.
// It is single-threaded; the energy state and controller index are owned by
// the goroutine calling Run.
type IntervalRunner struct {
	sim        Simulator
	reader     *StatReader
	energy     *EnergyModel
	state      *EnergyState
	evaluator  *MissRateEvaluator
	controller DvfsController
	intervals  IntervalConfig
	statsPath  string
	retries    int
	out        io.Writer
	trace      *trace.RunTrace
	observers  []IntervalObserver

	runState RunState
	previous *CounterSnapshot
}

// RunnerConfig groups the collaborators of an IntervalRunner.
type RunnerConfig struct {
	Simulator   Simulator
	Energy      *EnergyModel
	State       *EnergyState // nil starts a fresh state
	Evaluator   *MissRateEvaluator
	Controller  DvfsController
	Intervals   IntervalConfig
	StatsPath   string
	ReadRetries int
	Out         io.Writer // progress lines, defaults to stdout
	Trace       *trace.RunTrace
}

// NewIntervalRunner wires a runner. The stat reader tracks exactly the
// counters the energy model and evaluator consume.
func NewIntervalRunner(cfg RunnerConfig) *IntervalRunner {
	keys := append(cfg.Energy.Counters(), cfg.Evaluator.Counters()...)
	state := cfg.State
	if state == nil {
		state = NewEnergyState()
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.Intervals.CompletionCause == "" {
		cfg.Intervals.CompletionCause = CompletionCause
	}
	return &IntervalRunner{
		sim:        cfg.Simulator,
		reader:     NewStatReader(keys),
		energy:     cfg.Energy,
		state:      state,
		evaluator:  cfg.Evaluator,
		controller: cfg.Controller,
		intervals:  cfg.Intervals,
		statsPath:  cfg.StatsPath,
		retries:    cfg.ReadRetries,
		out:        out,
		trace:      cfg.Trace,
		runState:   StateRunning,
	}
}

// Observe registers an observer called after each interval.
func (r *IntervalRunner) Observe(o IntervalObserver) {
	r.observers = append(r.observers, o)
}

// State returns the current run state.
func (r *IntervalRunner) State() RunState {
	return r.runState
}

// Energy returns the energy state threaded through the run.
func (r *IntervalRunner) Energy() *EnergyState {
	return r.state
}

// Run executes intervals until the workload completes or the budget is spent.
// Missing counters and zero durations are absorbed; simulator failures and
// unreadable reports end the run with an error.
func (r *IntervalRunner) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		Policy:    r.controller.Name(),
		PowerMode: r.energy.Mode(),
		Trace:     r.trace,
	}

	level := r.controller.Level()
	if err := r.sim.SetClock(ctx, level); err != nil {
		return result, fmt.Errorf("applying initial DVFS level %s: %w", level, err)
	}
	logrus.Infof("Starting adaptive run: policy=%s, level %d (%s), %d intervals of %d ticks",
		r.controller.Name(), r.controller.Index(), level, r.intervals.Max, r.intervals.TickQuantum)

	for i := 1; i <= r.intervals.Max; i++ {
		fmt.Fprintf(r.out, "\n--- Interval %d ---\n", i)
		exit, err := r.sim.Advance(ctx, r.intervals.TickQuantum)
		if err != nil {
			return result, fmt.Errorf("interval %d: advancing simulation: %w", i, err)
		}
		fmt.Fprintf(r.out, "Exiting @ tick %d because %s\n", exit.Tick, exit.Cause)
		result.Intervals = i
		result.FinalTick = exit.Tick
		result.Cause = string(exit.Cause)

		if string(exit.Cause) == r.intervals.CompletionCause {
			r.runState = StateCompleted
			fmt.Fprintln(r.out, "Workload has completed; ending simulation.")
			rec, err := r.sample(ctx, i, exit, true)
			if err != nil {
				return result, err
			}
			r.report(rec)
			break
		}

		rec, err := r.sample(ctx, i, exit, false)
		if err != nil {
			return result, err
		}
		r.report(rec)
	}

	if r.runState == StateRunning {
		r.runState = StateBudgetExhausted
		logrus.Infof("Interval budget of %d exhausted at tick %d", r.intervals.Max, result.FinalTick)
	}
	result.State = r.runState
	result.TotalEnergyNJ = r.state.Cumulative
	return result, nil
}

// sample dumps and reads stats, accumulates energy and, unless final, steps
// the controller and applies the new level.
func (r *IntervalRunner) sample(ctx context.Context, interval int, exit ExitEvent, final bool) (trace.IntervalRecord, error) {
	rec := trace.IntervalRecord{
		Interval: interval,
		Tick:     exit.Tick,
		Cause:    string(exit.Cause),
		Final:    final,
	}
	if err := r.sim.DumpStats(ctx); err != nil {
		return rec, fmt.Errorf("interval %d: dumping stats: %w", interval, err)
	}
	snap, err := r.refresh()
	if err != nil {
		return rec, fmt.Errorf("interval %d: %w", interval, err)
	}

	energy := r.energy.Accumulate(snap, r.state)
	rec.IncrementalNJ = energy.Incremental.InexactFloat64()
	rec.CumulativeNJ = energy.Cumulative.InexactFloat64()
	rec.PowerW = energy.Power.InexactFloat64()
	fmt.Fprintf(r.out, "Energy Consumed: %s nJ\n", energy.Cumulative.StringFixed(10))
	if r.energy.Mode() != PowerNone {
		fmt.Fprintf(r.out, "Power Consumption: %s W\n", energy.Power.StringFixed(10))
	}

	if !final {
		signal := 0.0
		if r.controller.Feedback() {
			ms := r.evaluator.Evaluate(r.previous, snap)
			rec.ICacheMissRate, rec.DCacheMissRate, signal = ms.ICache, ms.DCache, ms.Value
			logrus.Debugf("interval %d: icache miss rate %.4f, dcache miss rate %.4f", interval, ms.ICache, ms.DCache)
		}
		r.controller.Step(signal)
		level := r.controller.Level()
		if err := r.sim.SetClock(ctx, level); err != nil {
			return rec, fmt.Errorf("interval %d: applying DVFS level %s: %w", interval, level, err)
		}
		rec.Signal = signal
		fmt.Fprintf(r.out, "Applied DVFS level %d: %s\n", r.controller.Index(), level)
	}
	level := r.controller.Level()
	rec.Level, rec.Frequency, rec.Voltage = r.controller.Index(), level.Frequency, level.Voltage

	r.previous = snap
	return rec, nil
}

// refresh reads the report, retrying fatal read failures up to the configured
// bound.
func (r *IntervalRunner) refresh() (*CounterSnapshot, error) {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		var snap *CounterSnapshot
		snap, err = r.reader.Refresh(r.statsPath)
		if err == nil {
			return snap, nil
		}
		if attempt < r.retries {
			logrus.Warnf("Reading %s failed (attempt %d/%d): %v", r.statsPath, attempt+1, r.retries+1, err)
		}
	}
	return nil, err
}

func (r *IntervalRunner) report(rec trace.IntervalRecord) {
	r.trace.RecordInterval(rec)
	for _, o := range r.observers {
		o(rec)
	}
}

// BuildRunner assembles a runner for a validated configuration and its
// resolved hierarchy.
func BuildRunner(cfg *RunConfig, h *Hierarchy, s Simulator, out io.Writer) (*IntervalRunner, error) {
	energy, err := NewEnergyModel(h.EnergyTerms, h.Coefficients, h.PowerMode)
	if err != nil {
		return nil, fmt.Errorf("hierarchy %s: %w", h.Name, err)
	}
	level := trace.TraceLevel(cfg.Trace.Level)
	if level == "" {
		level = trace.TraceLevelNone
	}
	return NewIntervalRunner(RunnerConfig{
		Simulator:   s,
		Energy:      energy,
		Evaluator:   NewMissRateEvaluator(h.MissRate),
		Controller:  NewDvfsController(cfg.Control.Policy, cfg.Control.Ladder, cfg.Control.DefaultLevel, cfg.Thresholds()),
		Intervals:   cfg.Intervals,
		StatsPath:   cfg.StatsFile,
		ReadRetries: cfg.Stats.ReadRetries,
		Out:         out,
		Trace:       trace.NewRunTrace(level),
	}), nil
}
