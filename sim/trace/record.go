// Package trace provides per-interval recording for adaptive DVFS runs.
// It has no dependencies on sim/ and stores pure data types.
package trace

// IntervalRecord captures the outcome of one sampling interval.
type IntervalRecord struct {
	Interval  int    `json:"interval"` // 1-based
	Tick      int64  `json:"tick"`
	Cause     string `json:"cause"`
	Final     bool   `json:"final"` // workload completed in this interval
	Level     int    `json:"level"` // ladder index applied for the next interval
	Frequency string `json:"frequency"`
	Voltage   string `json:"voltage"`

	ICacheMissRate float64 `json:"icache_miss_rate"`
	DCacheMissRate float64 `json:"dcache_miss_rate"`
	Signal         float64 `json:"signal"`

	IncrementalNJ float64 `json:"incremental_nj"`
	CumulativeNJ  float64 `json:"cumulative_nj"`
	PowerW        float64 `json:"power_w"`
}
