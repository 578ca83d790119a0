package sim

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EventKind names a class of energy-consuming event.
type EventKind string

const (
	EventInstruction  EventKind = "cpu_instruction"
	EventICacheAccess EventKind = "icache_access"
	EventICacheMiss   EventKind = "icache_miss"
	EventDCacheAccess EventKind = "dcache_access"
	EventDCacheMiss   EventKind = "dcache_miss"
	EventL1Access     EventKind = "l1_access"
	EventL1Miss       EventKind = "l1_miss"
	EventL2Access     EventKind = "l2_access"
	EventL2Miss       EventKind = "l2_miss"
)

// ValidEventKinds is the set of recognized event kinds.
var ValidEventKinds = map[EventKind]bool{
	EventInstruction: true, EventICacheAccess: true, EventICacheMiss: true,
	EventDCacheAccess: true, EventDCacheMiss: true, EventL1Access: true,
	EventL1Miss: true, EventL2Access: true, EventL2Miss: true,
}

// EnergyCoefficients maps an event kind to its energy per event in picojoules.
type EnergyCoefficients map[EventKind]decimal.Decimal

// ParseEnergyCoefficients converts decimal strings keyed by event kind.
func ParseEnergyCoefficients(raw map[string]string) (EnergyCoefficients, error) {
	out := make(EnergyCoefficients, len(raw))
	for name, s := range raw {
		kind := EventKind(name)
		if !ValidEventKinds[kind] {
			return nil, fmt.Errorf("unknown energy event kind %q", name)
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("energy coefficient %s: %w", name, err)
		}
		if v.IsNegative() {
			return nil, fmt.Errorf("energy coefficient %s must be non-negative, got %s", name, s)
		}
		out[kind] = v
	}
	return out, nil
}

// EnergyTerm binds an event kind to the counters whose sum counts its events.
// Presets list both the per-requestor and "::total" breakdowns for L0/L1
// terms, so populated reports count those events twice.
type EnergyTerm struct {
	Kind     EventKind
	Counters []string
}

// PowerMode selects how instantaneous power is derived from energy.
type PowerMode string

const (
	// PowerInterval divides the interval's incremental energy by simSeconds.
	PowerInterval PowerMode = "interval"
	// PowerCumulative divides the run's cumulative energy by simSeconds.
	PowerCumulative PowerMode = "cumulative"
	// PowerNone accumulates energy but never computes power.
	PowerNone PowerMode = "none"
)

// ValidPowerModes is the set of recognized power modes. Empty selects the
// hierarchy's default.
var ValidPowerModes = map[PowerMode]bool{"": true, PowerInterval: true, PowerCumulative: true, PowerNone: true}

var (
	picoPerNano = decimal.NewFromInt(1000)
	nanoToUnit  = decimal.New(1, -9)
)

// EnergyState is the running energy total of one run, in nanojoules.
type EnergyState struct {
	Cumulative decimal.Decimal
	Samples    int
}

// NewEnergyState returns a zeroed state.
func NewEnergyState() *EnergyState {
	return &EnergyState{Cumulative: decimal.Zero}
}

// EnergyReport is the outcome of one Accumulate call.
type EnergyReport struct {
	Incremental decimal.Decimal // nJ attributed to this snapshot
	Cumulative  decimal.Decimal // nJ since run start
	Power       decimal.Decimal // W, zero when not computed
	SimSeconds  decimal.Decimal
}

// EnergyModel converts counter snapshots into energy and power.
type EnergyModel struct {
	terms        []EnergyTerm
	coefficients EnergyCoefficients
	mode         PowerMode
}

// NewEnergyModel creates a model. Every term's kind must have a coefficient.
func NewEnergyModel(terms []EnergyTerm, coefficients EnergyCoefficients, mode PowerMode) (*EnergyModel, error) {
	if mode == "" {
		mode = PowerInterval
	}
	if !ValidPowerModes[mode] {
		return nil, fmt.Errorf("unknown power mode %q", mode)
	}
	for _, t := range terms {
		c, ok := coefficients[t.Kind]
		if !ok {
			return nil, fmt.Errorf("no energy coefficient for %q", t.Kind)
		}
		if c.IsNegative() {
			return nil, fmt.Errorf("energy coefficient for %q is negative", t.Kind)
		}
	}
	return &EnergyModel{terms: terms, coefficients: coefficients, mode: mode}, nil
}

// Mode returns the power mode in effect.
func (m *EnergyModel) Mode() PowerMode {
	return m.mode
}

// Counters lists every counter the model reads, including simSeconds.
func (m *EnergyModel) Counters() []string {
	keys := []string{SimSecondsKey}
	for _, t := range m.terms {
		keys = append(keys, t.Counters...)
	}
	return keys
}

// Accumulate computes the snapshot's energy, adds it to state and derives power.
func (m *EnergyModel) Accumulate(snap *CounterSnapshot, state *EnergyState) EnergyReport {
	picojoules := decimal.Zero
	for _, t := range m.terms {
		events := snap.Sum(t.Counters...)
		picojoules = picojoules.Add(events.Mul(m.coefficients[t.Kind]))
	}
	incremental := picojoules.Div(picoPerNano)

	state.Cumulative = state.Cumulative.Add(incremental)
	state.Samples++

	seconds := snap.Value(SimSecondsKey)
	report := EnergyReport{
		Incremental: incremental,
		Cumulative:  state.Cumulative,
		Power:       decimal.Zero,
		SimSeconds:  seconds,
	}
	if !seconds.IsPositive() {
		return report
	}
	switch m.mode {
	case PowerInterval:
		report.Power = incremental.Mul(nanoToUnit).Div(seconds)
	case PowerCumulative:
		report.Power = state.Cumulative.Mul(nanoToUnit).Div(seconds)
	}
	return report
}
