package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"2GHz", 2e9},
		{"2.5GHz", 2.5e9},
		{"800MHz", 8e8},
		{" 100kHz ", 1e5},
		{"1000Hz", 1000},
	}
	for _, tc := range tests {
		got, err := ParseFrequency(tc.in)
		require.NoError(t, err, tc.in)
		assert.InDelta(t, tc.want, got, 1e-3, tc.in)
	}
	for _, bad := range []string{"2", "GHz", "-1GHz", "0Hz", "two GHz"} {
		_, err := ParseFrequency(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseVoltage(t *testing.T) {
	got, err := ParseVoltage("0.8V")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got, 1e-12)

	got, err = ParseVoltage("950mV")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, got, 1e-12)

	for _, bad := range []string{"0.8", "V", "0V"} {
		_, err := ParseVoltage(bad)
		assert.Error(t, err, bad)
	}
}
