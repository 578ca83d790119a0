package sim

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// CacheKind tags what a cache holds. The set is closed; wiring is chosen by
// switching on it.
type CacheKind string

const (
	CacheInstruction CacheKind = "instruction"
	CacheData        CacheKind = "data"
	CacheUnified     CacheKind = "unified"
)

// AddrRange restricts a cache bank to [Start, Start+Size).
type AddrRange struct {
	Start uint64 `json:"start"`
	Size  string `json:"size"`
}

// CacheConfig describes one cache instance.
type CacheConfig struct {
	Name            string     `json:"name"`
	Kind            CacheKind  `json:"kind"`
	Level           int        `json:"level"`
	Size            string     `json:"size"`
	Assoc           int        `json:"assoc"`
	TagLatency      int        `json:"tag_latency"`
	DataLatency     int        `json:"data_latency"`
	ResponseLatency int        `json:"response_latency"`
	MSHRs           int        `json:"mshrs"`
	TargetsPerMSHR  int        `json:"tgts_per_mshr"`
	AddrRange       *AddrRange `json:"addr_range,omitempty"`
}

// Link connects a requestor port to a responder port.
type Link struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Hierarchy bundles a cache topology with the counters and energy table used
// to evaluate it.
type Hierarchy struct {
	Name         string
	Description  string
	Workload     string
	Clock        DvfsLevel
	MemSize      string
	Caches       []CacheConfig
	EnergyTerms  []EnergyTerm
	Coefficients EnergyCoefficients
	MissRate     MissRateKeys
	PowerMode    PowerMode
}

// cpuPorts maps first-level cache kinds to the CPU port they attach to.
var cpuPorts = map[CacheKind]string{
	CacheInstruction: "cpu.icache_port",
	CacheData:        "cpu.dcache_port",
}

func busName(level, lastLevel int) string {
	if level > lastLevel {
		return "membus"
	}
	return fmt.Sprintf("l%dbus", level)
}

// Links returns the port wiring for the hierarchy: first-level split caches
// attach to the CPU, every other cache hangs off the bus of its level, and
// each cache's memory side feeds the bus of the level below it.
//
// Buses are named for the level they feed: l<N>bus carries requests into the
// level-N caches, and the bus past the last level is membus. In l1-l2 the
// crossbar between the L1 caches and the L2 is therefore l2bus, and in the
// L0 presets the crossbar between L0 and L1 is l1bus.
func (h *Hierarchy) Links() []Link {
	if len(h.Caches) == 0 {
		return nil
	}
	first, last := h.Caches[0].Level, h.Caches[0].Level
	for _, c := range h.Caches {
		first = min(first, c.Level)
		last = max(last, c.Level)
	}
	links := make([]Link, 0, 2*len(h.Caches))
	for _, c := range h.Caches {
		var cpuSide string
		switch c.Kind {
		case CacheInstruction, CacheData:
			if c.Level == first {
				cpuSide = cpuPorts[c.Kind]
			} else {
				cpuSide = busName(c.Level, last) + ".mem_side_ports"
			}
		case CacheUnified:
			cpuSide = busName(c.Level, last) + ".mem_side_ports"
		}
		links = append(links,
			Link{From: cpuSide, To: c.Name + ".cpu_side"},
			Link{From: c.Name + ".mem_side", To: busName(c.Level+1, last) + ".cpu_side_ports"},
		)
	}
	return links
}

// Counters lists every counter the hierarchy's energy model and miss-rate
// evaluator read, sorted and deduplicated.
func (h *Hierarchy) Counters() []string {
	seen := map[string]bool{SimSecondsKey: true}
	for _, t := range h.EnergyTerms {
		for _, k := range t.Counters {
			seen[k] = true
		}
	}
	for _, k := range []string{h.MissRate.ICacheAccesses, h.MissRate.ICacheMisses, h.MissRate.DCacheAccesses, h.MissRate.DCacheMisses} {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks cache parameters and that every energy term has a coefficient.
func (h *Hierarchy) Validate() error {
	names := make(map[string]bool)
	for _, c := range h.Caches {
		if names[c.Name] {
			return fmt.Errorf("hierarchy %s: duplicate cache %q", h.Name, c.Name)
		}
		names[c.Name] = true
		switch c.Kind {
		case CacheInstruction, CacheData, CacheUnified:
		default:
			return fmt.Errorf("hierarchy %s: cache %s has unknown kind %q", h.Name, c.Name, c.Kind)
		}
		if c.Assoc <= 0 || c.MSHRs <= 0 || c.TargetsPerMSHR <= 0 {
			return fmt.Errorf("hierarchy %s: cache %s needs positive assoc, mshrs and tgts_per_mshr", h.Name, c.Name)
		}
	}
	for _, t := range h.EnergyTerms {
		if _, ok := h.Coefficients[t.Kind]; !ok {
			return fmt.Errorf("hierarchy %s: no coefficient for %q", h.Name, t.Kind)
		}
	}
	return nil
}

// demand expands a cache's demand counters for the given requestors.
func demand(cache, stat string, requestors ...string) []string {
	keys := make([]string, len(requestors))
	for i, r := range requestors {
		keys[i] = fmt.Sprintf("system.%s.%s::%s", cache, stat, r)
	}
	return keys
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

const numInstsKey = "system.cpu.commitStats0.numInsts"

func splitL1Terms(icache, dcache string) []EnergyTerm {
	return []EnergyTerm{
		{Kind: EventInstruction, Counters: []string{numInstsKey}},
		{Kind: EventICacheAccess, Counters: demand(icache, "demandAccesses", "cpu.inst", "total")},
		{Kind: EventICacheMiss, Counters: demand(icache, "demandMisses", "cpu.inst", "total")},
		{Kind: EventDCacheAccess, Counters: demand(dcache, "demandAccesses", "cpu.data", "total")},
		{Kind: EventDCacheMiss, Counters: demand(dcache, "demandMisses", "cpu.data", "total")},
	}
}

func missKeys(icache, dcache string) MissRateKeys {
	return MissRateKeys{
		ICacheAccesses: "system." + icache + ".demandAccesses::total",
		ICacheMisses:   "system." + icache + ".demandMisses::total",
		DCacheAccesses: "system." + dcache + ".demandAccesses::total",
		DCacheMisses:   "system." + dcache + ".demandMisses::total",
	}
}

// l0 caches and the shared L1 used by the deeper presets.
func l0Caches(assoc int) []CacheConfig {
	l0 := CacheConfig{Level: 0, Assoc: assoc, TagLatency: 1, DataLatency: 1, ResponseLatency: 1, MSHRs: 4, TargetsPerMSHR: 30}
	i, d := l0, l0
	i.Name, i.Kind, i.Size = "cpu.icache", CacheInstruction, "16kB"
	d.Name, d.Kind, d.Size = "cpu.dcache", CacheData, "64kB"
	return []CacheConfig{i, d,
		{Name: "l1cache", Kind: CacheUnified, Level: 1, Size: "256kB", Assoc: 2, TagLatency: 2, DataLatency: 2, ResponseLatency: 2, MSHRs: 4, TargetsPerMSHR: 20},
	}
}

func bankedCoefficients() EnergyCoefficients {
	return EnergyCoefficients{
		EventInstruction:  dec("0.001"),
		EventICacheAccess: dec("0.106922"),
		EventICacheMiss:   dec("0.196762"),
		EventDCacheAccess: dec("0.153788"),
		EventDCacheMiss:   dec("0.526297"),
		EventL1Access:     dec("0.562175"),
		EventL1Miss:       dec("2.06044"),
		EventL2Access:     dec("1.65909"),
		EventL2Miss:       dec("4.65562"),
	}
}

var presets = map[string]func() *Hierarchy{
	"l1-l2": func() *Hierarchy {
		return &Hierarchy{
			Name:        "l1-l2",
			Description: "split 32kB/128kB L1 with a 1MB unified L2",
			Workload:    "tiled_matrix_multiply",
			Clock:       DvfsLevel{Frequency: "2GHz", Voltage: "1.0V"},
			MemSize:     "1GB",
			Caches: []CacheConfig{
				{Name: "cpu.l1icache", Kind: CacheInstruction, Level: 1, Size: "32kB", Assoc: 2, TagLatency: 2, DataLatency: 2, ResponseLatency: 2, MSHRs: 4, TargetsPerMSHR: 20},
				{Name: "cpu.l1dcache", Kind: CacheData, Level: 1, Size: "128kB", Assoc: 2, TagLatency: 2, DataLatency: 2, ResponseLatency: 2, MSHRs: 4, TargetsPerMSHR: 20},
				{Name: "l2cache", Kind: CacheUnified, Level: 2, Size: "1MB", Assoc: 8, TagLatency: 10, DataLatency: 10, ResponseLatency: 10, MSHRs: 16, TargetsPerMSHR: 64},
			},
			EnergyTerms: append(splitL1Terms("cpu.l1icache", "cpu.l1dcache"),
				EnergyTerm{Kind: EventL2Access, Counters: demand("l2cache", "demandAccesses", "cpu.inst", "cpu.data")},
				EnergyTerm{Kind: EventL2Miss, Counters: demand("l2cache", "demandMisses", "cpu.inst", "cpu.data")},
			),
			Coefficients: EnergyCoefficients{
				EventInstruction:  dec("0.001"),
				EventICacheAccess: dec("0.006"),
				EventICacheMiss:   dec("0.007"),
				EventDCacheAccess: dec("0.007"),
				EventDCacheMiss:   dec("0.008"),
				EventL2Access:     dec("0.008"),
				EventL2Miss:       dec("0.009"),
			},
			MissRate:  missKeys("cpu.l1icache", "cpu.l1dcache"),
			PowerMode: PowerInterval,
		}
	},
	"l0-l1-l2-banked": func() *Hierarchy {
		caches := append(l0Caches(1),
			CacheConfig{Name: "l2highfreq", Kind: CacheUnified, Level: 2, Size: "512kB", Assoc: 4, TagLatency: 5, DataLatency: 5, ResponseLatency: 5, MSHRs: 8, TargetsPerMSHR: 32,
				AddrRange: &AddrRange{Start: 0x00000000, Size: "512MB"}},
			CacheConfig{Name: "l2lowfreq", Kind: CacheUnified, Level: 2, Size: "1MB", Assoc: 8, TagLatency: 10, DataLatency: 10, ResponseLatency: 10, MSHRs: 16, TargetsPerMSHR: 64,
				AddrRange: &AddrRange{Start: 0x20000000, Size: "512MB"}},
		)
		return &Hierarchy{
			Name:        "l0-l1-l2-banked",
			Description: "split L0, 256kB L1, L2 split into a fast low bank and a slow high bank",
			Workload:    "tiled_convolution",
			Clock:       DvfsLevel{Frequency: "2GHz", Voltage: "1.0V"},
			MemSize:     "1GB",
			Caches:      caches,
			// Only the fast bank is charged for L2 energy.
			EnergyTerms: append(splitL1Terms("cpu.icache", "cpu.dcache"),
				EnergyTerm{Kind: EventL1Access, Counters: demand("l1cache", "demandAccesses", "cpu.inst", "cpu.data")},
				EnergyTerm{Kind: EventL1Miss, Counters: demand("l1cache", "demandMisses", "cpu.inst", "cpu.data")},
				EnergyTerm{Kind: EventL2Access, Counters: demand("l2highfreq", "demandAccesses", "cpu.inst", "cpu.data")},
				EnergyTerm{Kind: EventL2Miss, Counters: demand("l2highfreq", "demandMisses", "cpu.inst", "cpu.data")},
			),
			Coefficients: bankedCoefficients(),
			MissRate:     missKeys("cpu.icache", "cpu.dcache"),
			PowerMode:    PowerNone,
		}
	},
	"l0-l1": func() *Hierarchy {
		return &Hierarchy{
			Name:        "l0-l1",
			Description: "split 16kB/64kB L0 with a 256kB unified L1",
			Workload:    "hello",
			Clock:       DvfsLevel{Frequency: "2GHz", Voltage: "1.0V"},
			MemSize:     "512MB",
			Caches:      l0Caches(2),
			EnergyTerms: append(splitL1Terms("cpu.icache", "cpu.dcache"),
				EnergyTerm{Kind: EventL1Access, Counters: demand("l1cache", "demandAccesses", "cpu.inst", "cpu.data")},
				EnergyTerm{Kind: EventL1Miss, Counters: demand("l1cache", "demandMisses", "cpu.inst", "cpu.data")},
			),
			Coefficients: bankedCoefficients(),
			MissRate:     missKeys("cpu.icache", "cpu.dcache"),
			PowerMode:    PowerInterval,
		}
	},
}

// PresetNames returns the built-in hierarchy names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsValidHierarchy returns true if name is a built-in hierarchy.
func IsValidHierarchy(name string) bool {
	_, ok := presets[name]
	return ok
}

// LookupHierarchy returns a fresh copy of a built-in hierarchy.
func LookupHierarchy(name string) (*Hierarchy, error) {
	build, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown hierarchy %q (known: %v)", name, PresetNames())
	}
	return build(), nil
}
