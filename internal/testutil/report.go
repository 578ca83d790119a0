// Package testutil provides shared test infrastructure for the dvfs-sim
// packages: stats report fixtures and decimal assertion helpers.
package testutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

// DumpHeader and DumpFooter delimit one dump block in a gem5 stats report.
const (
	DumpHeader = "---------- Begin Simulation Statistics ----------"
	DumpFooter = "---------- End Simulation Statistics   ----------"
)

// FormatReport renders values as one gem5-style dump block, keys sorted, each
// line carrying a trailing annotation.
func FormatReport(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("\n" + DumpHeader + "\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%-60s %20s                       # (Unspecified)\n", k, values[k])
	}
	b.WriteString(DumpFooter + "\n")
	return b.String()
}

// WriteReport writes the given dump blocks, in order, to name inside dir and
// returns the full path.
func WriteReport(t *testing.T, dir, name string, dumps ...map[string]string) string {
	t.Helper()
	var b strings.Builder
	for _, d := range dumps {
		b.WriteString(FormatReport(d))
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("Failed to write stats report: %v", err)
	}
	return path
}

// AssertDecimalEqual compares two decimals exactly.
func AssertDecimalEqual(t *testing.T, name string, want, got decimal.Decimal) {
	t.Helper()
	if !want.Equal(got) {
		t.Errorf("%s: got %s, want %s", name, got, want)
	}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
