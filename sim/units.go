package sim

import (
	"fmt"
	"strconv"
	"strings"
)

var frequencyScale = []struct {
	suffix string
	factor float64
}{
	{"THz", 1e12}, {"GHz", 1e9}, {"MHz", 1e6}, {"kHz", 1e3}, {"Hz", 1},
}

var voltageScale = []struct {
	suffix string
	factor float64
}{
	{"mV", 1e-3}, {"kV", 1e3}, {"V", 1},
}

// ParseFrequency converts a clock string such as "2.5GHz" to hertz.
func ParseFrequency(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, u := range frequencyScale {
		if num, ok := strings.CutSuffix(s, u.suffix); ok {
			return parseScaled(s, num, u.factor)
		}
	}
	return 0, fmt.Errorf("frequency %q has no Hz unit suffix", s)
}

// ParseVoltage converts a voltage string such as "0.8V" to volts.
func ParseVoltage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, u := range voltageScale {
		if num, ok := strings.CutSuffix(s, u.suffix); ok {
			return parseScaled(s, num, u.factor)
		}
	}
	return 0, fmt.Errorf("voltage %q has no V unit suffix", s)
}

func parseScaled(orig, num string, factor float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", orig, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("quantity %q must be positive", orig)
	}
	return v * factor, nil
}
