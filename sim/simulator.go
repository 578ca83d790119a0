package sim

import "context"

//go:generate mockgen -destination=mocks/mock_simulator.go -package=mocks github.com/inference-sim/dvfs-sim/sim Simulator

// TerminationReason is the simulator's exit cause for an advance call. It is
// opaque except for comparison against the configured completion cause.
type TerminationReason string

// ExitEvent is returned by Simulator.Advance.
type ExitEvent struct {
	Tick  int64
	Cause TerminationReason
}

// Simulator is the external cycle-level simulator as seen by the control loop.
// Calls are blocking and strictly sequential.
type Simulator interface {
	// Advance simulates ticks more ticks; ticks <= 0 runs until the simulator
	// exits on its own.
	Advance(ctx context.Context, ticks int64) (ExitEvent, error)
	// DumpStats flushes the current counters to the persisted report.
	DumpStats(ctx context.Context) error
	// SetClock applies a frequency/voltage pair to the simulated clock domain
	// for ticks simulated after the call.
	SetClock(ctx context.Context, level DvfsLevel) error
}
