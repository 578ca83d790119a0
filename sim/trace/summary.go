package trace

import "gonum.org/v1/gonum/stat"

// TraceSummary aggregates statistics from a RunTrace.
type TraceSummary struct {
	TotalIntervals int         `json:"total_intervals"`
	Transitions    int         `json:"transitions"`     // intervals whose level differs from the previous one
	LevelResidency map[int]int `json:"level_residency"` // ladder index → intervals spent there
	MeanSignal     float64     `json:"mean_signal"`
	StdDevSignal   float64     `json:"stddev_signal"`
	MeanPowerW     float64     `json:"mean_power_w"`
	PeakPowerW     float64     `json:"peak_power_w"`
	FinalEnergyNJ  float64     `json:"final_energy_nj"`
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RunTrace) *TraceSummary {
	summary := &TraceSummary{
		LevelResidency: make(map[int]int),
	}
	if rt == nil || len(rt.Intervals) == 0 {
		return summary
	}

	signals := make([]float64, 0, len(rt.Intervals))
	powers := make([]float64, 0, len(rt.Intervals))
	for i, r := range rt.Intervals {
		summary.LevelResidency[r.Level]++
		if i > 0 && r.Level != rt.Intervals[i-1].Level {
			summary.Transitions++
		}
		signals = append(signals, r.Signal)
		powers = append(powers, r.PowerW)
		summary.PeakPowerW = max(summary.PeakPowerW, r.PowerW)
	}

	summary.TotalIntervals = len(rt.Intervals)
	summary.MeanSignal = stat.Mean(signals, nil)
	if len(signals) > 1 {
		summary.StdDevSignal = stat.StdDev(signals, nil)
	}
	summary.MeanPowerW = stat.Mean(powers, nil)
	summary.FinalEnergyNJ = rt.Intervals[len(rt.Intervals)-1].CumulativeNJ

	return summary
}
