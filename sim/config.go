package sim

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/dvfs-sim/sim/trace"
)

// CompletionCause is the exit cause gem5 reports when the workload's last
// thread context exits.
const CompletionCause = "exiting with last active thread context"

// IntervalConfig groups the sampling loop parameters.
type IntervalConfig struct {
	Max             int    `yaml:"max"`              // interval budget (must be > 0)
	TickQuantum     int64  `yaml:"tick_quantum"`     // ticks per interval, 0 = run unbounded
	CompletionCause string `yaml:"completion_cause"` // termination sentinel
}

// ControlConfig groups DVFS policy selection and parameters.
type ControlConfig struct {
	Policy        string  `yaml:"policy"` // "feedback" (default), "round-robin", "static"
	HighThreshold float64 `yaml:"high_threshold"`
	LowThreshold  float64 `yaml:"low_threshold"`
	DefaultLevel  int     `yaml:"default_level"`
	Ladder        Ladder  `yaml:"ladder"`
}

// EnergyConfig selects the power mode and optional coefficient overrides
// (decimal strings, picojoules per event).
type EnergyConfig struct {
	PowerMode    PowerMode         `yaml:"power_mode"`
	Coefficients map[string]string `yaml:"coefficients"`
}

// StatsConfig controls report reading.
type StatsConfig struct {
	ReadRetries int `yaml:"read_retries"` // extra attempts on a fatal read
}

// TraceConfig controls interval tracing.
type TraceConfig struct {
	Level string `yaml:"level"` // "intervals" (default) or "none"
}

// SimulatorConfig describes how to launch the external simulator.
type SimulatorConfig struct {
	Binary   string        `yaml:"binary"`   // gem5 executable
	Driver   string        `yaml:"driver"`   // driver script speaking the JSON-lines protocol
	Workload string        `yaml:"workload"` // workload binary, defaults to the hierarchy's
	OutDir   string        `yaml:"outdir"`   // gem5 output directory
	Timeout  time.Duration `yaml:"timeout"`  // per-request timeout
}

// RunConfig is the full run configuration, loadable from YAML.
type RunConfig struct {
	Hierarchy string          `yaml:"hierarchy"`
	StatsFile string          `yaml:"stats_file"`
	Intervals IntervalConfig  `yaml:"intervals"`
	Control   ControlConfig   `yaml:"control"`
	Energy    EnergyConfig    `yaml:"energy"`
	Stats     StatsConfig     `yaml:"stats"`
	Trace     TraceConfig     `yaml:"trace"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// DefaultRunConfig mirrors the adaptive hierarchy run: 1000 intervals of
// 100M ticks with a 20%/5% miss-rate band.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Hierarchy: "l0-l1-l2-banked",
		StatsFile: "m5out/stats.txt",
		Intervals: IntervalConfig{
			Max:             1000,
			TickQuantum:     100_000_000,
			CompletionCause: CompletionCause,
		},
		Control: ControlConfig{
			Policy:        "feedback",
			HighThreshold: 0.20,
			LowThreshold:  0.05,
			DefaultLevel:  1,
			Ladder:        DefaultLadder(),
		},
		Trace: TraceConfig{Level: string(trace.TraceLevelIntervals)},
		Simulator: SimulatorConfig{
			Binary:  "gem5.opt",
			Driver:  "configs/dvfs_driver.py",
			OutDir:  "m5out",
			Timeout: 10 * time.Minute,
		},
	}
}

// LoadRunConfig reads a YAML run configuration on top of DefaultRunConfig.
// Unknown fields are rejected so typos surface as errors.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	cfg := DefaultRunConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}
	return cfg, nil
}

// Thresholds returns the miss-rate band.
func (c *RunConfig) Thresholds() MissRateThresholds {
	return MissRateThresholds{High: c.Control.HighThreshold, Low: c.Control.LowThreshold}
}

// Validate checks names and parameter ranges.
func (c *RunConfig) Validate() error {
	if !IsValidHierarchy(c.Hierarchy) {
		return fmt.Errorf("unknown hierarchy %q", c.Hierarchy)
	}
	if c.StatsFile == "" {
		return fmt.Errorf("stats_file must be set")
	}
	if c.Intervals.Max <= 0 {
		return fmt.Errorf("intervals.max must be positive, got %d", c.Intervals.Max)
	}
	if c.Intervals.TickQuantum < 0 {
		return fmt.Errorf("intervals.tick_quantum must be non-negative, got %d", c.Intervals.TickQuantum)
	}
	if c.Intervals.CompletionCause == "" {
		return fmt.Errorf("intervals.completion_cause must be set")
	}
	if !ValidDvfsPolicies[c.Control.Policy] {
		return fmt.Errorf("unknown DVFS policy %q", c.Control.Policy)
	}
	if err := c.Control.Ladder.Validate(); err != nil {
		return err
	}
	if c.Control.DefaultLevel < 0 || c.Control.DefaultLevel >= len(c.Control.Ladder) {
		return fmt.Errorf("control.default_level %d outside ladder of %d levels", c.Control.DefaultLevel, len(c.Control.Ladder))
	}
	if c.Control.LowThreshold < 0 || c.Control.HighThreshold > 1 {
		return fmt.Errorf("miss-rate thresholds must lie in [0,1], got low=%v high=%v", c.Control.LowThreshold, c.Control.HighThreshold)
	}
	if c.Control.LowThreshold > c.Control.HighThreshold {
		return fmt.Errorf("low_threshold %v exceeds high_threshold %v", c.Control.LowThreshold, c.Control.HighThreshold)
	}
	if !ValidPowerModes[c.Energy.PowerMode] {
		return fmt.Errorf("unknown power mode %q", c.Energy.PowerMode)
	}
	if _, err := ParseEnergyCoefficients(c.Energy.Coefficients); err != nil {
		return err
	}
	if c.Stats.ReadRetries < 0 {
		return fmt.Errorf("stats.read_retries must be non-negative, got %d", c.Stats.ReadRetries)
	}
	if !trace.IsValidTraceLevel(c.Trace.Level) {
		return fmt.Errorf("unknown trace level %q", c.Trace.Level)
	}
	return nil
}

// ResolveHierarchy returns the configured hierarchy with coefficient overrides
// applied. Overriding an event kind the hierarchy never charges is an error.
func (c *RunConfig) ResolveHierarchy() (*Hierarchy, error) {
	h, err := LookupHierarchy(c.Hierarchy)
	if err != nil {
		return nil, err
	}
	overrides, err := ParseEnergyCoefficients(c.Energy.Coefficients)
	if err != nil {
		return nil, err
	}
	charged := make(map[EventKind]bool, len(h.EnergyTerms))
	for _, t := range h.EnergyTerms {
		charged[t.Kind] = true
	}
	for kind, v := range overrides {
		if !charged[kind] {
			return nil, fmt.Errorf("energy coefficient %q has no term in hierarchy %s", kind, h.Name)
		}
		h.Coefficients[kind] = v
	}
	if c.Energy.PowerMode != "" {
		h.PowerMode = c.Energy.PowerMode
	}
	if c.Simulator.Workload != "" {
		h.Workload = c.Simulator.Workload
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}
