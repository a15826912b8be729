package audio_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/pkg/audio"
)

func TestRMS(t *testing.T) {
	assert.Zero(t, audio.RMS(nil), "empty")
	assert.Zero(t, audio.RMS(make([]byte, 320)), "silence")

	half := make([]int16, 160)
	for i := range half {
		half[i] = 16384
	}
	assert.InDelta(t, 0.5, audio.RMS(samplesToBytes(half)), 0.001, "half scale")

	full := make([]int16, 160)
	for i := range full {
		full[i] = 32767
	}
	got := audio.RMS(samplesToBytes(full))
	assert.GreaterOrEqual(t, got, 0.999, "full scale")
	assert.LessOrEqual(t, got, 1.0, "full scale")
}

func TestZCR(t *testing.T) {
	assert.Zero(t, audio.ZCR(samplesToBytes([]int16{100})), "single sample")

	constant := samplesToBytes([]int16{500, 500, 500, 500})
	assert.Zero(t, audio.ZCR(constant), "constant signal")

	alternating := samplesToBytes([]int16{500, -500, 500, -500, 500})
	assert.Equal(t, 1.0, audio.ZCR(alternating), "alternating signal")
}

func TestFrameEnergies(t *testing.T) {
	// Two full frames plus a partial one; the partial frame is dropped.
	samples := make([]int16, 160*2+80)
	for i := 160; i < 320; i++ {
		samples[i] = 16384
	}
	energies := audio.FrameEnergies(samplesToBytes(samples), 160)
	require.Len(t, energies, 2)
	assert.Zero(t, energies[0], "silent frame energy")
	assert.InDelta(t, 0.5, energies[1], 0.001, "loud frame energy")

	assert.Nil(t, audio.FrameEnergies(samplesToBytes(samples), 0), "zero frame size")
}

func TestEstimateOptimalThreshold(t *testing.T) {
	assert.Equal(t, 0.001, audio.EstimateOptimalThreshold(nil, 15, 3.0), "no energies")

	// Uniform floor: 15th percentile is the floor itself, times 3.
	uniform := []float64{0.01, 0.01, 0.01, 0.01}
	assert.InDelta(t, 0.03, audio.EstimateOptimalThreshold(uniform, 15, 3.0), 1e-9, "uniform floor")

	// Near-silent floor clamps to the minimum.
	quiet := []float64{1e-6, 1e-6, 1e-6}
	assert.Equal(t, 0.001, audio.EstimateOptimalThreshold(quiet, 15, 3.0), "quiet floor")

	// A hot floor clamps to the maximum.
	loud := []float64{0.5, 0.6, 0.7}
	assert.Equal(t, 0.1, audio.EstimateOptimalThreshold(loud, 15, 3.0), "hot floor")
}

func TestNormalizeVolume(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{50, 0.5},
		{100, 1},
		{150, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		got := audio.NormalizeVolume(tt.in)
		assert.Equal(t, tt.want, got, "NormalizeVolume(%v)", tt.in)
		// Applying twice must not change the result.
		assert.Equal(t, got, audio.NormalizeVolume(got), "NormalizeVolume(%v) not idempotent", tt.in)
	}
}
