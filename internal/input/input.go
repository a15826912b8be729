// Package input multiplexes the assistant's input sources (terminal lines,
// microphone frames, web requests) into one queue the pipeline driver
// reads. Each started source gets a consumer goroutine; the queue is
// unbounded so a burst on one source never stalls another, and items from
// the same source keep their order.
package input

import (
	"context"
	"errors"

	"github.com/attalus-io/vestibule/pkg/audio"
)

// Kind tags what a source emits.
type Kind string

const (
	// KindText is a typed or transcribed command line.
	KindText Kind = "text"

	// KindAudio is a PCM frame to run through the voice pipeline.
	KindAudio Kind = "audio"

	// KindMixed marks a source that emits both kinds; individual items
	// still carry KindText or KindAudio.
	KindMixed Kind = "mixed"
)

// Data is one item of input. Source is stamped by the manager at fan-in;
// exactly one of Text and Audio is meaningful, per Kind.
type Data struct {
	Source    string
	Kind      Kind
	Text      string
	Audio     audio.AudioData
	SessionID string
}

// Source is a producer of input items.
//
// Listen acquires the source's resources and returns the item channel; the
// channel closes when the source stops or ctx is cancelled. Stop releases
// the resources and waits for the channel to close. Both are safe to call
// more than once.
type Source interface {
	Name() string
	Type() Kind

	// Available reports whether the source can be started at all, e.g.
	// whether a capture backend is registered for the microphone.
	Available() bool

	// Listening reports whether Listen is active.
	Listening() bool

	// Settings describes the source's effective configuration for the
	// status surface.
	Settings() map[string]any

	Listen(ctx context.Context) (<-chan Data, error)
	Stop(ctx context.Context) error
}

// Status is one source's state as reported by the manager.
type Status struct {
	Name      string         `json:"name"`
	Type      Kind           `json:"type"`
	Available bool           `json:"available"`
	Listening bool           `json:"listening"`
	Settings  map[string]any `json:"settings,omitempty"`
}

var (
	// ErrClosed reports a read from a closed manager.
	ErrClosed = errors.New("input manager closed")

	// ErrUnknownSource reports an operation on a source name that was
	// never registered.
	ErrUnknownSource = errors.New("unknown input source")

	// ErrNotListening reports a push into a source that is not started.
	ErrNotListening = errors.New("input source not listening")

	// ErrNoCaptureDevice reports a microphone start without a capture
	// backend registered.
	ErrNoCaptureDevice = errors.New("no capture device registered")
)
