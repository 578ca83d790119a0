// Package sim provides the adaptive sampling-and-control loop that drives a
// cycle-level simulator in fixed-length intervals.
//
// # Reading Guide
//
// Start with these files to understand the loop:
//   - runner.go: IntervalRunner, the advance → dump → read → derive → decide → apply loop
//   - stats.go: StatReader and the immutable CounterSnapshot
//   - energy.go: EnergyModel, EnergyState and the power modes
//   - missrate.go: the miss-rate control signal
//   - dvfs.go: DVFS ladder and controller policies
//
// # Architecture
//
// The sim package defines the Simulator interface; implementations live in
// sub-packages:
//   - sim/gem5/: gem5 driver client and recorded-report replay
//   - sim/trace/: per-interval records and run summaries
//
// Hierarchy presets (hierarchy.go) tie a cache topology to the counters and
// energy coefficients used to evaluate it, so the counters a StatReader tracks
// are always the ones its consumers read.
//
// # Key Interfaces
//
//   - Simulator: advance by N ticks, dump stats, set clock/voltage
//   - DvfsController: feedback, round-robin and static policies, built by name
package sim
