package sim

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// SimSecondsKey is the report counter holding elapsed simulated seconds.
const SimSecondsKey = "simSeconds"

// dumpHeader delimits successive dumps appended to the same report.
const dumpHeader = "---------- Begin Simulation Statistics ----------"

// statLine matches any line shaped like "<name> <number>". Dump delimiters
// start with '-' and never match.
var statLine = regexp.MustCompile(`(?m)^[^\s-]\S*[ \t]+[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?([ \t]|$)`)

// CounterSnapshot is an immutable view of the tracked counters at one point in
// simulated time. Values are never negative for well-formed reports.
type CounterSnapshot struct {
	source string
	values map[string]decimal.Decimal
	absent map[string]bool
}

// NewCounterSnapshot builds a snapshot directly from values. Keys listed in
// tracked but missing from values are recorded as absent and read as zero.
func NewCounterSnapshot(tracked []string, values map[string]decimal.Decimal) *CounterSnapshot {
	s := &CounterSnapshot{
		values: make(map[string]decimal.Decimal, len(tracked)),
		absent: make(map[string]bool),
	}
	for _, key := range tracked {
		if v, ok := values[key]; ok {
			s.values[key] = v
		} else {
			s.values[key] = decimal.Zero
			s.absent[key] = true
		}
	}
	return s
}

// Value returns the counter for key. Panics if key is not tracked by the
// reader that produced the snapshot.
func (s *CounterSnapshot) Value(key string) decimal.Decimal {
	v, ok := s.values[key]
	if !ok {
		panic(fmt.Sprintf("counter %q is not tracked by this snapshot", key))
	}
	return v
}

// Sum adds the values of keys.
func (s *CounterSnapshot) Sum(keys ...string) decimal.Decimal {
	total := decimal.Zero
	for _, key := range keys {
		total = total.Add(s.Value(key))
	}
	return total
}

// Missing reports whether key was absent from the report.
func (s *CounterSnapshot) Missing(key string) bool {
	return s.absent[key]
}

// Keys returns the tracked keys in sorted order.
func (s *CounterSnapshot) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Source is the report path the snapshot was read from ("" if built in memory).
func (s *CounterSnapshot) Source() string {
	return s.source
}

// StatReader extracts a fixed list of counters from a gem5-style stats report.
type StatReader struct {
	keys     []string
	patterns map[string]*regexp.Regexp
}

// NewStatReader creates a reader tracking the given keys. Duplicates are
// collapsed.
func NewStatReader(keys []string) *StatReader {
	r := &StatReader{patterns: make(map[string]*regexp.Regexp, len(keys))}
	for _, key := range keys {
		if _, dup := r.patterns[key]; dup {
			continue
		}
		r.keys = append(r.keys, key)
		r.patterns[key] = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(key) + `[ \t]+([\d.eE+-]+)`)
	}
	return r
}

// Keys returns the tracked keys in registration order.
func (r *StatReader) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Refresh reads the report at path. The report must already have been dumped
// by the simulator; Refresh never triggers a dump itself.
func (r *StatReader) Refresh(path string) (*CounterSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading stats report: %w", err)
	}
	defer f.Close()
	return r.Parse(f, path)
}

// Parse reads a report from in. source names the report in warnings and errors.
// Only the last dump block is searched, and the first match per key wins.
func (r *StatReader) Parse(in io.Reader, source string) (*CounterSnapshot, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("reading stats report %s: %w", source, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("stats report %s is not a text report", source)
	}
	idx := bytes.LastIndex(data, []byte(dumpHeader))
	if idx >= 0 {
		data = data[idx+len(dumpHeader):]
		if !statLine.Match(data) {
			return nil, fmt.Errorf("stats report %s: last dump is incomplete", source)
		}
	} else if len(bytes.TrimSpace(data)) > 0 && !statLine.Match(data) {
		return nil, fmt.Errorf("stats report %s contains no statistics", source)
	}

	found := make(map[string]decimal.Decimal, len(r.keys))
	for _, key := range r.keys {
		m := r.patterns[key].FindSubmatch(data)
		if m == nil {
			logrus.Warnf("Stat %q not found in %s; using 0", key, source)
			continue
		}
		v, err := decimal.NewFromString(string(m[1]))
		if err != nil {
			logrus.Warnf("Stat %q in %s has unparsable value %q; using 0", key, source, m[1])
			continue
		}
		found[key] = v
	}
	snap := NewCounterSnapshot(r.keys, found)
	snap.source = source
	return snap, nil
}
