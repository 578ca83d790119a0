package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/dvfs-sim/sim/trace"
)

// RunResult is the outcome of one adaptive run.
type RunResult struct {
	RunID         string          `json:"run_id"`
	Hierarchy     string          `json:"hierarchy"`
	Policy        string          `json:"policy"`
	PowerMode     PowerMode       `json:"power_mode"`
	State         RunState        `json:"state"`
	Intervals     int             `json:"intervals"`
	FinalTick     int64           `json:"final_tick"`
	Cause         string          `json:"cause"`
	TotalEnergyNJ decimal.Decimal `json:"total_energy_nj"`

	Trace   *trace.RunTrace     `json:"trace,omitempty"`
	Summary *trace.TraceSummary `json:"summary,omitempty"`
}

// NewRunID returns a unique, time-sortable run identifier.
func NewRunID() string {
	return xid.New().String()
}

// Finalize stamps the run id and hierarchy name and computes the trace summary.
func (r *RunResult) Finalize(hierarchy string) {
	if r.RunID == "" {
		r.RunID = NewRunID()
	}
	r.Hierarchy = hierarchy
	r.Summary = trace.Summarize(r.Trace)
}

// Print writes a human-readable summary.
func (r *RunResult) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Run Summary ===")
	fmt.Fprintf(w, "Run ID          : %s\n", r.RunID)
	fmt.Fprintf(w, "Hierarchy       : %s\n", r.Hierarchy)
	fmt.Fprintf(w, "Policy          : %s (power mode %s)\n", r.Policy, r.PowerMode)
	fmt.Fprintf(w, "State           : %s after %d intervals\n", r.State, r.Intervals)
	fmt.Fprintf(w, "Final tick      : %d (%s)\n", r.FinalTick, r.Cause)
	fmt.Fprintf(w, "Energy Consumed : %s nJ\n", r.TotalEnergyNJ.StringFixed(10))
	if r.Summary == nil || r.Summary.TotalIntervals == 0 {
		return
	}
	fmt.Fprintf(w, "Transitions     : %d\n", r.Summary.Transitions)
	fmt.Fprintf(w, "Mean miss signal: %.4f (stddev %.4f)\n", r.Summary.MeanSignal, r.Summary.StdDevSignal)
	if r.PowerMode != PowerNone {
		fmt.Fprintf(w, "Power           : mean %.6f W, peak %.6f W\n", r.Summary.MeanPowerW, r.Summary.PeakPowerW)
	}
	levels := make([]int, 0, len(r.Summary.LevelResidency))
	for l := range r.Summary.LevelResidency {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	for _, l := range levels {
		fmt.Fprintf(w, "  level %d       : %d intervals\n", l, r.Summary.LevelResidency[l])
	}
}

// SaveResults writes the result as indented JSON to path, creating parent
// directories as needed.
func (r *RunResult) SaveResults(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating results directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results %s: %w", path, err)
	}
	logrus.Infof("Results written to %s", path)
	return nil
}

// LoadResults reads a results file written by SaveResults.
func LoadResults(path string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	var r RunResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing results %s: %w", path, err)
	}
	return &r, nil
}
