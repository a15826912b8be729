// Package tts defines the Provider interface for speech synthesis backends.
//
// A TTS provider turns one response text into one PCM frame. Synthesis is
// per-utterance rather than streaming: the playback queue orders whole
// utterances, so there is nothing to pipeline below that granularity. The
// console provider is the degradation target; it prints instead of speaking
// and never fails, which keeps responses flowing when every real synthesis
// backend is down.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/attalus-io/vestibule/pkg/audio"
)

// Options tunes a single synthesis request. The zero value selects provider
// defaults.
type Options struct {
	// Voice is the provider-specific voice identifier. Empty selects the
	// provider's default voice.
	Voice string

	// Speed adjusts the speaking rate (0.5..2.0, 0 = provider default).
	Speed float64

	// Language is a BCP-47 hint for providers with per-language voices.
	Language string
}

// Provider is the abstraction over any speech synthesis backend.
type Provider interface {
	// Synthesize renders text as one PCM frame at the provider's output rate.
	// Implementations return text-only frames (empty payload) when they have
	// no audio path; callers check the payload before queueing playback.
	Synthesize(ctx context.Context, text string, opts Options) (audio.AudioData, error)

	// SampleRate is the rate of frames produced by Synthesize.
	SampleRate() int

	// Name identifies the provider in logs and metrics.
	Name() string
}
