// Package audio provides the audio primitives the assistant pipeline is built
// on: immutable PCM frames, voice segments, RMS-based voice activity
// detection, and sample-rate conversion with a bounded conversion cache.
//
// All PCM data is 16-bit little-endian unless stated otherwise. Frames are
// treated as immutable after creation: derivation helpers return copies and
// never mutate their receiver.
package audio

import (
	"fmt"
	"time"
)

// FormatPCM16 is the encoding tag for 16-bit little-endian PCM, the only
// encoding the core pipeline processes directly.
const FormatPCM16 = "pcm16"

// Metadata keys stamped onto frames by the audio infrastructure.
const (
	// MetaResamplingApplied is true when the frame's payload was produced by
	// an actual rate conversion, false for identity conversions.
	MetaResamplingApplied = "resampling_applied"

	// MetaCacheHit is true when a conversion was served from the cache.
	MetaCacheHit = "cache_hit"

	// MetaVoiceDurationMs carries the voice duration of a combined segment.
	MetaVoiceDurationMs = "voice_duration_ms"

	// MetaSourceRate records the original sample rate before conversion.
	MetaSourceRate = "source_sample_rate"

	// MetaResampleMethod records which conversion method produced the frame.
	MetaResampleMethod = "resampling_method"
)

// AudioData is an immutable frame of audio flowing through the pipeline.
// Ownership transfers by value; nothing mutates a frame after creation.
type AudioData struct {
	// Data is the raw payload, typically 16-bit little-endian PCM.
	Data []byte

	// Timestamp marks when the frame was captured.
	Timestamp time.Time

	// SampleRate in Hz (e.g., 16000 for ASR input, 44100 for consumer mics).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Format is the encoding tag ("pcm16").
	Format string

	// Metadata carries free-form annotations added along the pipeline
	// (resampling_applied, cache_hit, voice_duration_ms, ...).
	Metadata map[string]any
}

// NewAudioData builds a PCM16 frame with the capture timestamp set to now.
func NewAudioData(data []byte, sampleRate, channels int) AudioData {
	return AudioData{
		Data:       data,
		Timestamp:  time.Now(),
		SampleRate: sampleRate,
		Channels:   channels,
		Format:     FormatPCM16,
		Metadata:   map[string]any{},
	}
}

// WithMetadata returns a copy of the frame with the given key set. The
// payload is shared (frames are immutable); the metadata map is cloned so the
// original frame is never touched.
func (a AudioData) WithMetadata(key string, value any) AudioData {
	md := make(map[string]any, len(a.Metadata)+1)
	for k, v := range a.Metadata {
		md[k] = v
	}
	md[key] = value
	a.Metadata = md
	return a
}

// Meta reads a metadata key; ok is false when the key is absent.
func (a AudioData) Meta(key string) (value any, ok bool) {
	if a.Metadata == nil {
		return nil, false
	}
	value, ok = a.Metadata[key]
	return value, ok
}

// SampleCount returns the number of samples per channel in the frame.
func (a AudioData) SampleCount() int {
	if a.Channels <= 0 {
		return 0
	}
	return len(a.Data) / 2 / a.Channels
}

// Duration returns the playback duration of the frame.
func (a AudioData) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.SampleCount()) * time.Second / time.Duration(a.SampleRate)
}

// FormatString returns a human-readable format description,
// e.g. "16000Hz mono pcm16".
func (a AudioData) FormatString() string {
	ch := "mono"
	if a.Channels == 2 {
		ch = "stereo"
	} else if a.Channels > 2 {
		ch = fmt.Sprintf("%dch", a.Channels)
	}
	return fmt.Sprintf("%dHz %s %s", a.SampleRate, ch, a.Format)
}

// VoiceSegment is a VAD-emitted aggregate: the ordered frames of a single
// utterance. Created when the detector closes a voice span; consumed once by
// the pipeline.
type VoiceSegment struct {
	// Frames are the member frames in arrival order.
	Frames []AudioData

	// Duration is the total voice duration across frames.
	Duration time.Duration
}

// Combined concatenates the member frames into one frame carrying the
// segment's voice duration in metadata. Frames are assumed to share rate and
// channel count (the detector guarantees this).
func (s VoiceSegment) Combined() AudioData {
	if len(s.Frames) == 0 {
		return AudioData{Format: FormatPCM16, Metadata: map[string]any{}}
	}

	total := 0
	for _, f := range s.Frames {
		total += len(f.Data)
	}
	data := make([]byte, 0, total)
	for _, f := range s.Frames {
		data = append(data, f.Data...)
	}

	first := s.Frames[0]
	out := NewAudioData(data, first.SampleRate, first.Channels)
	out.Timestamp = first.Timestamp
	return out.WithMetadata(MetaVoiceDurationMs, s.Duration.Milliseconds())
}

// NormalizeForASR returns a copy of the segment with every frame scaled so
// the combined RMS energy approaches targetRMS (normalized scale, 0..1).
// Segments already louder than the target are left untouched so quiet noise
// is never amplified into clipping.
func (s VoiceSegment) NormalizeForASR(targetRMS float64) VoiceSegment {
	if targetRMS <= 0 || len(s.Frames) == 0 {
		return s
	}

	current := RMS(s.Combined().Data)
	if current <= 0 || current >= targetRMS {
		return s
	}

	gain := targetRMS / current
	scaled := make([]AudioData, len(s.Frames))
	for i, f := range s.Frames {
		nf := f
		nf.Data = scalePCM16(f.Data, gain)
		scaled[i] = nf
	}
	return VoiceSegment{Frames: scaled, Duration: s.Duration}
}

// scalePCM16 multiplies every sample by gain, clamping to the int16 range.
func scalePCM16(pcm []byte, gain float64) []byte {
	out := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(pcm[i]) | int16(pcm[i+1])<<8)
		v := s * gain
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		iv := int16(v)
		out[i] = byte(iv)
		out[i+1] = byte(iv >> 8)
	}
	return out
}
