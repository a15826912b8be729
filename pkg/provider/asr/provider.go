// Package asr defines the Provider interface for speech recognition backends.
//
// An ASR provider wraps a transcription service (e.g., the OpenAI audio API or
// a local Whisper server) behind a batch interface: the voice activity
// detector hands over one complete utterance as a single PCM frame and the
// provider returns the recognised text. Rate negotiation happens up front:
// the pipeline asks PreferredSampleRates once and converts audio before
// calling Transcribe, so providers never resample internally.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"
	"errors"
	"time"

	"github.com/attalus-io/vestibule/pkg/audio"
)

// ErrEmptyAudio is returned when Transcribe is called with no PCM payload.
var ErrEmptyAudio = errors.New("asr: empty audio payload")

// Result is a completed transcription.
type Result struct {
	// Text is the recognised speech content, trimmed. Empty when the provider
	// heard no speech in the payload.
	Text string

	// Confidence is the overall recognition confidence (0.0..1.0). Zero when
	// the provider does not report one.
	Confidence float64

	// Language is the detected or configured BCP-47 language tag, when known.
	Language string

	// AudioDuration is the length of the transcribed payload.
	AudioDuration time.Duration
}

// Provider is the abstraction over any speech recognition backend.
//
// Implementations must be safe for concurrent use; the pipeline may
// transcribe utterances from several sessions in parallel.
type Provider interface {
	// Transcribe recognises one complete utterance. The frame's sample rate
	// must be one the provider accepts (see SupportsSampleRate); the caller
	// is responsible for prior conversion.
	Transcribe(ctx context.Context, frame audio.AudioData) (Result, error)

	// PreferredSampleRates lists accepted rates in preference order. The
	// first entry is the provider's native rate.
	PreferredSampleRates() []int

	// SupportsSampleRate reports whether the provider accepts frames at the
	// given rate without conversion.
	SupportsSampleRate(rate int) bool

	// Reset discards any accumulated recognition state (language locks,
	// context biasing). Batch providers may treat it as a no-op.
	Reset(ctx context.Context) error

	// Name identifies the provider in logs and metrics.
	Name() string
}
