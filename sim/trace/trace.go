package trace

// TraceLevel controls the verbosity of interval tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelIntervals captures one record per simulated interval.
	TraceLevelIntervals TraceLevel = "intervals"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelIntervals: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// RunTrace collects interval records during an adaptive run.
type RunTrace struct {
	Level     TraceLevel       `json:"level"`
	Intervals []IntervalRecord `json:"intervals"`
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace(level TraceLevel) *RunTrace {
	return &RunTrace{
		Level:     level,
		Intervals: make([]IntervalRecord, 0),
	}
}

// Enabled reports whether records are kept.
func (rt *RunTrace) Enabled() bool {
	return rt != nil && rt.Level == TraceLevelIntervals
}

// RecordInterval appends an interval record. No-op when tracing is disabled.
func (rt *RunTrace) RecordInterval(record IntervalRecord) {
	if !rt.Enabled() {
		return
	}
	rt.Intervals = append(rt.Intervals, record)
}
