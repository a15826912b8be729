// Package console provides the always-available TTS fallback: responses are
// written to a terminal instead of synthesised. It is the degradation target
// when every real synthesis backend is unreachable, so it must never fail.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
)

// Provider implements tts.Provider by printing utterances.
type Provider struct {
	mu     sync.Mutex
	out    io.Writer
	prefix string
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithWriter redirects output away from stdout. Used by tests and by web
// sessions that relay console output.
func WithWriter(w io.Writer) Option {
	return func(p *Provider) {
		p.out = w
	}
}

// WithPrefix replaces the default "[assistant]" line prefix.
func WithPrefix(prefix string) Option {
	return func(p *Provider) {
		p.prefix = prefix
	}
}

// New constructs a console Provider writing to stdout.
func New(opts ...Option) *Provider {
	p := &Provider{out: os.Stdout, prefix: "[assistant]"}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize implements tts.Provider. The returned frame has no PCM payload;
// the utterance is delivered through the writer instead.
func (p *Provider) Synthesize(_ context.Context, text string, _ tts.Options) (audio.AudioData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s\n", p.prefix, text)
	return audio.AudioData{Format: audio.FormatPCM16, Metadata: map[string]any{}}, nil
}

// SampleRate implements tts.Provider. Console output has no audio rate; zero
// tells the playback queue there is nothing to play.
func (p *Provider) SampleRate() int {
	return 0
}

// Name implements tts.Provider.
func (p *Provider) Name() string {
	return "console_tts"
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
