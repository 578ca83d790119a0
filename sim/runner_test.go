package sim_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/dvfs-sim/sim"
	"github.com/inference-sim/dvfs-sim/internal/testutil"
	"github.com/inference-sim/dvfs-sim/sim/mocks"
	"github.com/inference-sim/dvfs-sim/sim/trace"
)

const limitReached = sim.TerminationReason("simulate() limit reached")

// steadyDump is 2.45 pJ of events over one millisecond with a 10% miss rate
// on both L1 caches.
var steadyDump = map[string]string{
	"simSeconds":                                "0.001",
	"system.cpu.commitStats0.numInsts":          "1000",
	"system.cpu.l1icache.demandAccesses::total": "100",
	"system.cpu.l1icache.demandMisses::total":   "10",
	"system.cpu.l1dcache.demandAccesses::total": "100",
	"system.cpu.l1dcache.demandMisses::total":   "10",
}

type runnerFixture struct {
	cfg  *sim.RunConfig
	h    *sim.Hierarchy
	dir  string
	mock *mocks.MockSimulator
	out  bytes.Buffer
}

func newRunnerFixture(t *testing.T, policy string, maxIntervals int) *runnerFixture {
	t.Helper()
	f := &runnerFixture{dir: t.TempDir()}
	f.cfg = sim.DefaultRunConfig()
	f.cfg.Hierarchy = "l1-l2"
	f.cfg.StatsFile = filepath.Join(f.dir, "stats.txt")
	f.cfg.Control.Policy = policy
	f.cfg.Intervals.Max = maxIntervals
	f.cfg.Intervals.TickQuantum = 100
	require.NoError(t, f.cfg.Validate())
	h, err := f.cfg.ResolveHierarchy()
	require.NoError(t, err)
	f.h = h
	f.mock = mocks.NewMockSimulator(gomock.NewController(t))
	return f
}

func (f *runnerFixture) runner(t *testing.T) *sim.IntervalRunner {
	t.Helper()
	r, err := sim.BuildRunner(f.cfg, f.h, f.mock, &f.out)
	require.NoError(t, err)
	return r
}

// writeDumps makes successive DumpStats calls persist the given dumps in order.
func (f *runnerFixture) writeDumps(t *testing.T, dumps ...map[string]string) func(context.Context) error {
	n := 0
	return func(context.Context) error {
		testutil.WriteReport(t, f.dir, "stats.txt", dumps[n])
		n++
		return nil
	}
}

// advanceBy returns an Advance stub whose exit causes are taken from causes in
// order, with the tick counter moving by the requested quantum.
func advanceBy(causes ...sim.TerminationReason) func(context.Context, int64) (sim.ExitEvent, error) {
	var tick int64
	n := 0
	return func(_ context.Context, ticks int64) (sim.ExitEvent, error) {
		tick += ticks
		cause := causes[n]
		n++
		return sim.ExitEvent{Tick: tick, Cause: cause}, nil
	}
}

func TestIntervalRunner_BudgetExhausted_RunsExactlyMaxIntervals(t *testing.T) {
	// GIVEN a static policy and a simulator that never completes
	f := newRunnerFixture(t, "static", 3)
	f.mock.EXPECT().SetClock(gomock.Any(), sim.DvfsLevel{Frequency: "2.0GHz", Voltage: "1.0V"}).Return(nil).Times(4)
	f.mock.EXPECT().Advance(gomock.Any(), int64(100)).
		DoAndReturn(advanceBy(limitReached, limitReached, limitReached)).Times(3)
	f.mock.EXPECT().DumpStats(gomock.Any()).
		DoAndReturn(f.writeDumps(t, steadyDump, steadyDump, steadyDump)).Times(3)

	// WHEN the run executes
	result, err := f.runner(t).Run(context.Background())

	// THEN every interval is sampled and energy adds up
	require.NoError(t, err)
	assert.Equal(t, sim.StateBudgetExhausted, result.State)
	assert.Equal(t, 3, result.Intervals)
	assert.Equal(t, int64(300), result.FinalTick)
	testutil.AssertDecimalEqual(t, "total energy", decimal.RequireFromString("0.00735"), result.TotalEnergyNJ)
	require.Len(t, result.Trace.Intervals, 3)
	assert.False(t, result.Trace.Intervals[2].Final)
	assert.Contains(t, f.out.String(), "--- Interval 3 ---")
	assert.Contains(t, f.out.String(), "Energy Consumed: 0.0073500000 nJ")
}

func TestIntervalRunner_CompletionCause_StopsEarlyAndSamplesOnce(t *testing.T) {
	// GIVEN a workload that exits during the second interval
	f := newRunnerFixture(t, "static", 10)
	f.mock.EXPECT().SetClock(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	f.mock.EXPECT().Advance(gomock.Any(), gomock.Any()).
		DoAndReturn(advanceBy(limitReached, sim.CompletionCause)).Times(2)
	f.mock.EXPECT().DumpStats(gomock.Any()).
		DoAndReturn(f.writeDumps(t, steadyDump, steadyDump)).Times(2)

	r := f.runner(t)
	result, err := r.Run(context.Background())

	// THEN the final interval's energy is counted once and no level is applied after it
	require.NoError(t, err)
	assert.Equal(t, sim.StateCompleted, result.State)
	assert.Equal(t, sim.StateCompleted, r.State())
	assert.Equal(t, 2, result.Intervals)
	assert.Equal(t, sim.CompletionCause, result.Cause)
	testutil.AssertDecimalEqual(t, "total energy", decimal.RequireFromString("0.0049"), result.TotalEnergyNJ)
	assert.Equal(t, 2, r.Energy().Samples)
	require.Len(t, result.Trace.Intervals, 2)
	assert.True(t, result.Trace.Intervals[1].Final)
	assert.Contains(t, f.out.String(), "Workload has completed; ending simulation.")
}

func TestIntervalRunner_Feedback_LowersLevelOnHighMissRate(t *testing.T) {
	// GIVEN icache miss rates of 30% then 50% (windowed)
	f := newRunnerFixture(t, "feedback", 2)
	thrashing := map[string]string{
		"simSeconds":                                "0.001",
		"system.cpu.l1icache.demandAccesses::total": "100",
		"system.cpu.l1icache.demandMisses::total":   "30",
	}
	worse := map[string]string{
		"simSeconds":                                "0.002",
		"system.cpu.l1icache.demandAccesses::total": "200",
		"system.cpu.l1icache.demandMisses::total":   "80",
	}
	ladder := sim.DefaultLadder()
	gomock.InOrder(
		f.mock.EXPECT().SetClock(gomock.Any(), ladder[1]).Return(nil),
		f.mock.EXPECT().SetClock(gomock.Any(), ladder[0]).Return(nil),
		f.mock.EXPECT().SetClock(gomock.Any(), ladder[0]).Return(nil),
	)
	f.mock.EXPECT().Advance(gomock.Any(), gomock.Any()).DoAndReturn(advanceBy(limitReached, limitReached)).Times(2)
	f.mock.EXPECT().DumpStats(gomock.Any()).DoAndReturn(f.writeDumps(t, thrashing, worse)).Times(2)

	result, err := f.runner(t).Run(context.Background())

	// THEN the controller steps down once and stays at the floor
	require.NoError(t, err)
	recs := result.Trace.Intervals
	require.Len(t, recs, 2)
	assert.Equal(t, 0, recs[0].Level)
	assert.InDelta(t, 0.3, recs[0].ICacheMissRate, 1e-12)
	assert.InDelta(t, 0.5, recs[1].ICacheMissRate, 1e-12)
	assert.Equal(t, "1.5GHz", recs[1].Frequency)
	assert.Contains(t, f.out.String(), "Applied DVFS level 0: 1.5GHz @ 0.8V")
}

func TestIntervalRunner_UnreadableReport_IsFatal(t *testing.T) {
	// GIVEN a simulator that never writes the report, even with retries
	f := newRunnerFixture(t, "feedback", 5)
	f.cfg.Stats.ReadRetries = 2
	f.mock.EXPECT().SetClock(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	f.mock.EXPECT().Advance(gomock.Any(), gomock.Any()).DoAndReturn(advanceBy(limitReached)).Times(1)
	f.mock.EXPECT().DumpStats(gomock.Any()).Return(nil).Times(1)

	_, err := f.runner(t).Run(context.Background())

	// THEN the error names the interval and the report path
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval 1")
	assert.Contains(t, err.Error(), f.cfg.StatsFile)
}

func TestIntervalRunner_SimulatorErrors_Propagate(t *testing.T) {
	boom := errors.New("driver exited")

	t.Run("initial clock", func(t *testing.T) {
		f := newRunnerFixture(t, "feedback", 5)
		f.mock.EXPECT().SetClock(gomock.Any(), gomock.Any()).Return(boom)
		_, err := f.runner(t).Run(context.Background())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("advance", func(t *testing.T) {
		f := newRunnerFixture(t, "feedback", 5)
		f.mock.EXPECT().SetClock(gomock.Any(), gomock.Any()).Return(nil)
		f.mock.EXPECT().Advance(gomock.Any(), gomock.Any()).Return(sim.ExitEvent{}, boom)
		_, err := f.runner(t).Run(context.Background())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("dump", func(t *testing.T) {
		f := newRunnerFixture(t, "feedback", 5)
		f.mock.EXPECT().SetClock(gomock.Any(), gomock.Any()).Return(nil)
		f.mock.EXPECT().Advance(gomock.Any(), gomock.Any()).DoAndReturn(advanceBy(limitReached))
		f.mock.EXPECT().DumpStats(gomock.Any()).Return(boom)
		_, err := f.runner(t).Run(context.Background())
		assert.ErrorIs(t, err, boom)
	})
}

func TestIntervalRunner_Observers_SeeEveryInterval(t *testing.T) {
	f := newRunnerFixture(t, "round-robin", 3)
	f.cfg.Trace.Level = string(trace.TraceLevelNone)
	f.mock.EXPECT().SetClock(gomock.Any(), gomock.Any()).Return(nil).Times(4)
	f.mock.EXPECT().Advance(gomock.Any(), gomock.Any()).
		DoAndReturn(advanceBy(limitReached, limitReached, limitReached)).Times(3)
	f.mock.EXPECT().DumpStats(gomock.Any()).
		DoAndReturn(f.writeDumps(t, steadyDump, steadyDump, steadyDump)).Times(3)

	r := f.runner(t)
	var levels []int
	r.Observe(func(rec trace.IntervalRecord) { levels = append(levels, rec.Level) })
	result, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, levels)
	assert.Empty(t, result.Trace.Intervals, "disabled trace keeps no records")
}
