// Package voicetrigger defines the Provider interface for wake-phrase
// detection backends.
//
// A trigger provider examines one utterance at a time and reports whether it
// begins with a configured wake phrase. Providers differ in how much audio
// handling they do themselves: SupportsResampling tells the pipeline whether
// frames can be delivered at their source rate or must be converted first.
//
// Implementations must be safe for concurrent use.
package voicetrigger

import (
	"context"

	"github.com/attalus-io/vestibule/pkg/audio"
)

// Detection reports a recognised wake phrase.
type Detection struct {
	// Phrase is the canonical configured phrase that matched.
	Phrase string

	// Command is the rest of the utterance after the wake phrase, already
	// trimmed. Empty when the speaker said only the wake phrase.
	Command string

	// Heard is the raw recognised text the match was made on, for
	// diagnostics.
	Heard string

	// Confidence is the match confidence (0.0..1.0).
	Confidence float64
}

// Provider is the abstraction over any wake-phrase detection backend.
type Provider interface {
	// Detect examines one utterance. A nil Detection with nil error means no
	// wake phrase was present.
	Detect(ctx context.Context, frame audio.AudioData) (*Detection, error)

	// PreferredSampleRates lists accepted rates in preference order.
	PreferredSampleRates() []int

	// SupportsResampling reports whether the provider converts audio
	// internally. When true, the pipeline skips its own conversion and
	// delivers frames at their source rate.
	SupportsResampling() bool

	// Name identifies the provider in logs and metrics.
	Name() string
}
