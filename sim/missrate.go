package sim

import "github.com/shopspring/decimal"

// MissRateThresholds bound the hysteresis band of the feedback DVFS policy.
type MissRateThresholds struct {
	High float64
	Low  float64
}

// MissRateKeys names the counters a MissRateEvaluator reads.
type MissRateKeys struct {
	ICacheAccesses string
	ICacheMisses   string
	DCacheAccesses string
	DCacheMisses   string
}

// MissSignal is the evaluator output for one interval.
type MissSignal struct {
	ICache float64
	DCache float64
	Value  float64 // max(ICache, DCache)
}

// MissRateEvaluator reduces i-cache and d-cache miss ratios to one signal.
type MissRateEvaluator struct {
	keys MissRateKeys
}

func NewMissRateEvaluator(keys MissRateKeys) *MissRateEvaluator {
	return &MissRateEvaluator{keys: keys}
}

// Counters lists the counters the evaluator reads.
func (e *MissRateEvaluator) Counters() []string {
	return []string{e.keys.ICacheAccesses, e.keys.ICacheMisses, e.keys.DCacheAccesses, e.keys.DCacheMisses}
}

// Evaluate returns the miss signal for the interval ending at current.
// previous may be nil for the first interval.
func (e *MissRateEvaluator) Evaluate(previous, current *CounterSnapshot) MissSignal {
	i := windowedRatio(previous, current, e.keys.ICacheMisses, e.keys.ICacheAccesses)
	d := windowedRatio(previous, current, e.keys.DCacheMisses, e.keys.DCacheAccesses)
	return MissSignal{ICache: i, DCache: d, Value: max(i, d)}
}

// windowedRatio uses counter deltas when previous is usable. A decreasing
// counter means the simulator reset its stats, so the current values stand
// for the interval on their own.
func windowedRatio(previous, current *CounterSnapshot, missKey, accessKey string) float64 {
	misses := current.Value(missKey)
	accesses := current.Value(accessKey)
	if previous != nil {
		dm := misses.Sub(previous.Value(missKey))
		da := accesses.Sub(previous.Value(accessKey))
		if !dm.IsNegative() && !da.IsNegative() {
			misses, accesses = dm, da
		}
	}
	return ratio(misses, accesses)
}

func ratio(misses, accesses decimal.Decimal) float64 {
	if !accesses.IsPositive() {
		return 0
	}
	return misses.Div(accesses).InexactFloat64()
}
