package trace

import (
	"math"
	"testing"
)

func TestSummarize_NilTrace_ReturnsZeroSummary(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalIntervals != 0 || summary.Transitions != 0 {
		t.Errorf("expected zero summary, got %+v", summary)
	}
	if summary.LevelResidency == nil {
		t.Error("expected non-nil residency map")
	}
}

func TestSummarize_CountsTransitionsAndResidency(t *testing.T) {
	// GIVEN levels 1 → 0 → 0 → 2
	rt := NewRunTrace(TraceLevelIntervals)
	for i, lvl := range []int{1, 0, 0, 2} {
		rt.RecordInterval(IntervalRecord{Interval: i + 1, Level: lvl})
	}

	// WHEN summarized
	summary := Summarize(rt)

	// THEN two level changes are counted and residency matches
	if summary.Transitions != 2 {
		t.Errorf("expected 2 transitions, got %d", summary.Transitions)
	}
	if summary.LevelResidency[0] != 2 || summary.LevelResidency[1] != 1 || summary.LevelResidency[2] != 1 {
		t.Errorf("unexpected residency %v", summary.LevelResidency)
	}
	if summary.TotalIntervals != 4 {
		t.Errorf("expected 4 intervals, got %d", summary.TotalIntervals)
	}
}

func TestSummarize_SignalAndPowerStatistics(t *testing.T) {
	// GIVEN signals 0.1, 0.3 and powers 2, 6
	rt := NewRunTrace(TraceLevelIntervals)
	rt.RecordInterval(IntervalRecord{Interval: 1, Signal: 0.1, PowerW: 2, CumulativeNJ: 10})
	rt.RecordInterval(IntervalRecord{Interval: 2, Signal: 0.3, PowerW: 6, CumulativeNJ: 25})

	// WHEN summarized
	summary := Summarize(rt)

	// THEN mean = 0.2, sample stddev = sqrt(0.02), mean power 4, peak 6
	if math.Abs(summary.MeanSignal-0.2) > 1e-12 {
		t.Errorf("expected mean signal 0.2, got %v", summary.MeanSignal)
	}
	if math.Abs(summary.StdDevSignal-math.Sqrt(0.02)) > 1e-12 {
		t.Errorf("expected stddev %v, got %v", math.Sqrt(0.02), summary.StdDevSignal)
	}
	if summary.MeanPowerW != 4 || summary.PeakPowerW != 6 {
		t.Errorf("expected mean/peak power 4/6, got %v/%v", summary.MeanPowerW, summary.PeakPowerW)
	}
	if summary.FinalEnergyNJ != 25 {
		t.Errorf("expected final energy 25, got %v", summary.FinalEnergyNJ)
	}
}

func TestSummarize_SingleInterval_ZeroStdDev(t *testing.T) {
	rt := NewRunTrace(TraceLevelIntervals)
	rt.RecordInterval(IntervalRecord{Interval: 1, Signal: 0.4})
	if got := Summarize(rt).StdDevSignal; got != 0 {
		t.Errorf("expected zero stddev for one sample, got %v", got)
	}
}
