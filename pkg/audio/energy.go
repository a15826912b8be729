package audio

import (
	"math"
	"sort"
)

// RMS computes the normalized root-mean-square energy of 16-bit PCM data.
// The result is scaled to [0, 1] by the int16 range, so a full-scale square
// wave yields ~1.0 and silence yields 0.
func RMS(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(pcm[i]) | int16(pcm[i+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(samples)) / 32768.0
}

// ZCR computes the zero-crossing rate of 16-bit PCM data: the fraction of
// adjacent sample pairs whose signs differ. Useful as an auxiliary voicing
// feature (voiced speech has low ZCR, fricatives and hiss have high ZCR).
func ZCR(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples < 2 {
		return 0
	}

	crossings := 0
	prev := int16(pcm[0]) | int16(pcm[1])<<8
	for i := 2; i+1 < len(pcm); i += 2 {
		cur := int16(pcm[i]) | int16(pcm[i+1])<<8
		if (prev >= 0) != (cur >= 0) {
			crossings++
		}
		prev = cur
	}
	return float64(crossings) / float64(samples-1)
}

// FrameEnergies splits PCM data into frames of samplesPerFrame samples and
// returns the normalized RMS energy of each complete frame.
func FrameEnergies(pcm []byte, samplesPerFrame int) []float64 {
	if samplesPerFrame <= 0 {
		return nil
	}
	frameBytes := samplesPerFrame * 2
	n := len(pcm) / frameBytes
	energies := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		energies = append(energies, RMS(pcm[i*frameBytes:(i+1)*frameBytes]))
	}
	return energies
}

// EstimateOptimalThreshold derives a VAD energy threshold from observed frame
// energies: the noise floor is taken as the noisePercentile-th percentile of
// the energies, multiplied by voiceMultiplier, and clamped to [0.001, 0.1].
//
// Typical values: noisePercentile 15, voiceMultiplier 3.0. With no energies
// the lower clamp is returned.
func EstimateOptimalThreshold(energies []float64, noisePercentile, voiceMultiplier float64) float64 {
	const (
		minThreshold = 0.001
		maxThreshold = 0.1
	)

	if len(energies) == 0 {
		return minThreshold
	}

	sorted := make([]float64, len(energies))
	copy(sorted, energies)
	sort.Float64s(sorted)

	idx := int(noisePercentile / 100.0 * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	} else if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	threshold := sorted[idx] * voiceMultiplier
	if threshold < minThreshold {
		return minThreshold
	}
	if threshold > maxThreshold {
		return maxThreshold
	}
	return threshold
}

// NormalizeVolume maps a user-supplied volume value onto [0, 1]. Values in
// (1, 100] are treated as percentages; values above 100 saturate at 1 and
// negative values at 0. The function is idempotent: applying it twice yields
// the same result as applying it once.
func NormalizeVolume(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 100:
		return 1
	case v > 1:
		return v / 100
	default:
		return v
	}
}
