package audio

import (
	"errors"
	"fmt"
	"math"
)

// Method selects a sample-rate conversion algorithm.
type Method int

const (
	// MethodLinear is two-point linear interpolation. Fastest, audible
	// aliasing on large downsampling ratios.
	MethodLinear Method = iota

	// MethodPolyphase is rational-ratio polyphase FIR filtering. Balanced
	// speed and quality.
	MethodPolyphase

	// MethodSincKaiser is windowed-sinc interpolation with a Kaiser window.
	// Highest quality, slowest.
	MethodSincKaiser

	// MethodAdaptive picks one of the above based on the conversion ratio.
	MethodAdaptive
)

// String returns the canonical method name.
func (m Method) String() string {
	switch m {
	case MethodLinear:
		return "linear"
	case MethodPolyphase:
		return "polyphase"
	case MethodSincKaiser:
		return "sinc_kaiser"
	case MethodAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// UseCase describes what the converted audio is for, selecting a
// latency/quality trade-off.
type UseCase int

const (
	// UseCaseGeneral is the balanced default.
	UseCaseGeneral UseCase = iota

	// UseCaseVoiceTrigger optimizes for latency: wake-word detectors tolerate
	// lower conversion quality.
	UseCaseVoiceTrigger

	// UseCaseASR optimizes for quality: recognition accuracy degrades with
	// conversion artifacts.
	UseCaseASR
)

// String returns the canonical use-case name.
func (u UseCase) String() string {
	switch u {
	case UseCaseVoiceTrigger:
		return "voice_trigger"
	case UseCaseASR:
		return "asr"
	default:
		return "general"
	}
}

// MethodForUseCase resolves the conversion method for a use case and rate
// pair. MethodAdaptive resolves again at conversion time.
func MethodForUseCase(u UseCase, srcRate, dstRate int) Method {
	ratio := rateRatio(srcRate, dstRate)
	switch u {
	case UseCaseVoiceTrigger:
		if ratio <= 2 {
			return MethodLinear
		}
		return MethodPolyphase
	case UseCaseASR:
		switch {
		case ratio <= 1.5:
			return MethodSincKaiser
		case ratio <= 3:
			return MethodPolyphase
		default:
			return MethodAdaptive
		}
	default:
		return MethodPolyphase
	}
}

// resolveAdaptive picks a concrete method for MethodAdaptive.
func resolveAdaptive(srcRate, dstRate int) Method {
	ratio := rateRatio(srcRate, dstRate)
	switch {
	case ratio <= 1.5:
		return MethodLinear
	case ratio <= 3:
		return MethodPolyphase
	default:
		return MethodSincKaiser
	}
}

func rateRatio(a, b int) float64 {
	if a <= 0 || b <= 0 {
		return 1
	}
	if a < b {
		a, b = b, a
	}
	return float64(a) / float64(b)
}

// Conversion errors.
var (
	// ErrInvalidRate is returned for non-positive sample rates.
	ErrInvalidRate = errors.New("audio: sample rate must be positive")

	// ErrInvalidPCM is returned for payloads that are not aligned int16 PCM.
	ErrInvalidPCM = errors.New("audio: payload is not aligned 16-bit PCM")

	// ErrUnsupportedChannels is returned for channel counts other than 1 or 2.
	ErrUnsupportedChannels = errors.New("audio: only mono and stereo are supported")
)

// Resample converts 16-bit PCM from srcRate to dstRate with the given method,
// handling mono and stereo interleaved data. Identity conversions return the
// input unchanged.
func Resample(pcm []byte, srcRate, dstRate, channels int, method Method) ([]byte, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, ErrInvalidRate
	}
	if len(pcm)%2 != 0 || (channels == 2 && len(pcm)%4 != 0) {
		return nil, ErrInvalidPCM
	}
	if channels != 1 && channels != 2 {
		return nil, ErrUnsupportedChannels
	}
	if srcRate == dstRate {
		return pcm, nil
	}
	if method == MethodAdaptive {
		method = resolveAdaptive(srcRate, dstRate)
	}

	if channels == 1 {
		return resampleMono(pcm, srcRate, dstRate, method), nil
	}

	// Stereo: de-interleave, convert per channel, re-interleave.
	left, right := splitStereo16(pcm)
	left = resampleMono(left, srcRate, dstRate, method)
	right = resampleMono(right, srcRate, dstRate, method)
	return interleaveStereo16(left, right), nil
}

func resampleMono(pcm []byte, srcRate, dstRate int, method Method) []byte {
	switch method {
	case MethodPolyphase:
		return polyphaseResample16(pcm, srcRate, dstRate)
	case MethodSincKaiser:
		return sincResample16(pcm, srcRate, dstRate)
	default:
		return linearResample16(pcm, srcRate, dstRate)
	}
}

// linearResample16 resamples 16-bit mono PCM using two-point linear
// interpolation. If srcRate == dstRate the input is returned unchanged.
func linearResample16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// polyphaseTaps is the FIR length per polyphase branch.
const polyphaseTaps = 24

// polyphaseResample16 resamples via an up-by-L, filter, down-by-M polyphase
// structure. L and M derive from the rate pair reduced by their GCD; the
// anti-alias lowpass is a Kaiser-windowed sinc sized to the narrower of the
// two Nyquist limits.
func polyphaseResample16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := pcm16ToFloat(pcm)

	g := gcd(srcRate, dstRate)
	up := dstRate / g
	down := srcRate / g

	h := lowpassKaiser(up*polyphaseTaps, 1.0/float64(maxInt(up, down)), 8.6)
	// Compensate zero-insertion gain loss.
	for i := range h {
		h[i] *= float64(up)
	}

	half := polyphaseTaps / 2
	outLen := len(src) * up / down
	out := make([]float64, outLen)
	for n := range out {
		pos := n * down
		phase := pos % up
		base := pos / up

		var acc float64
		for t := range polyphaseTaps {
			idx := base - t + half
			if idx < 0 || idx >= len(src) {
				continue
			}
			acc += h[t*up+phase] * src[idx]
		}
		out[n] = acc
	}
	return floatToPCM16(out)
}

// sincHalfWidth is the one-sided tap count for windowed-sinc interpolation.
const sincHalfWidth = 16

// sincResample16 resamples by evaluating a Kaiser-windowed sinc interpolator
// at each fractional output position. When downsampling, the sinc cutoff is
// lowered to the output Nyquist so aliasing is filtered in the same pass.
func sincResample16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := pcm16ToFloat(pcm)

	step := float64(srcRate) / float64(dstRate)
	cutoff := 1.0
	if dstRate < srcRate {
		cutoff = float64(dstRate) / float64(srcRate)
	}

	outLen := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	out := make([]float64, outLen)
	const beta = 8.6

	for n := range out {
		center := float64(n) * step
		lo := int(math.Ceil(center)) - sincHalfWidth
		hi := int(math.Floor(center)) + sincHalfWidth

		var acc float64
		for k := lo; k <= hi; k++ {
			if k < 0 || k >= len(src) {
				continue
			}
			d := center - float64(k)
			acc += src[k] * cutoff * sinc(cutoff*d) * kaiser(d/float64(sincHalfWidth), beta)
		}
		out[n] = acc
	}
	return floatToPCM16(out)
}

// lowpassKaiser designs an n-tap FIR lowpass with the given normalized cutoff
// (1.0 = Nyquist) and Kaiser beta.
func lowpassKaiser(n int, cutoff, beta float64) []float64 {
	h := make([]float64, n)
	center := float64(n-1) / 2
	for i := range h {
		d := float64(i) - center
		h[i] = cutoff * sinc(cutoff*d) * kaiser(d/(center+1), beta)
	}
	return h
}

// sinc is the normalized sinc function sin(pi x) / (pi x).
func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// kaiser evaluates the Kaiser window at x in [-1, 1].
func kaiser(x, beta float64) float64 {
	if x < -1 || x > 1 {
		return 0
	}
	return besselI0(beta*math.Sqrt(1-x*x)) / besselI0(beta)
}

// besselI0 is the zeroth-order modified Bessel function of the first kind,
// via its power series. Converges quickly for the beta range used here.
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	half := x / 2
	for k := 1; k < 32; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < 1e-12*sum {
			break
		}
	}
	return sum
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ConvertChannels converts between mono and stereo, returning the input
// unchanged when counts already match.
func ConvertChannels(pcm []byte, from, to int) ([]byte, error) {
	switch {
	case from == to:
		return pcm, nil
	case from == 1 && to == 2:
		return MonoToStereo(pcm), nil
	case from == 2 && to == 1:
		return StereoToMono(pcm), nil
	default:
		return nil, fmt.Errorf("%w: %d -> %d", ErrUnsupportedChannels, from, to)
	}
}

func splitStereo16(pcm []byte) (left, right []byte) {
	frames := len(pcm) / 4
	left = make([]byte, frames*2)
	right = make([]byte, frames*2)
	for i := range frames {
		left[i*2] = pcm[i*4]
		left[i*2+1] = pcm[i*4+1]
		right[i*2] = pcm[i*4+2]
		right[i*2+1] = pcm[i*4+3]
	}
	return left, right
}

func interleaveStereo16(left, right []byte) []byte {
	frames := len(left) / 2
	if r := len(right) / 2; r < frames {
		frames = r
	}
	out := make([]byte, frames*4)
	for i := range frames {
		out[i*4] = left[i*2]
		out[i*4+1] = left[i*2+1]
		out[i*4+2] = right[i*2]
		out[i*4+3] = right[i*2+1]
	}
	return out
}

func pcm16ToFloat(pcm []byte) []float64 {
	samples := len(pcm) / 2
	out := make([]float64, samples)
	for i := range samples {
		out[i] = float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
	}
	return out
}

func floatToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		v := int16(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
