// Package mock provides test doubles for the tts package interfaces.
//
// Use Provider to script synthesis output and inspect what text was spoken:
//
//	p := &mock.Provider{Audio: audio.NewAudioData(pcm, 24000, 1)}
//	frame, _ := p.Synthesize(ctx, "hello", tts.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Text is the utterance passed to Synthesize.
	Text string
	// Opts are the options passed to Synthesize.
	Opts tts.Options
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock" when empty.
	ProviderName string

	// Audio is returned by every Synthesize call. When zero, Synthesize
	// fabricates a short silent frame at Rate.
	Audio audio.AudioData

	// Rate is returned by SampleRate. Defaults to 24000.
	Rate int

	// SynthesizeErr, if non-nil, is returned by every Synthesize call.
	SynthesizeErr error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Audio or SynthesizeErr.
func (p *Provider) Synthesize(_ context.Context, text string, opts tts.Options) (audio.AudioData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Opts: opts})
	if p.SynthesizeErr != nil {
		return audio.AudioData{}, p.SynthesizeErr
	}
	if len(p.Audio.Data) > 0 {
		return p.Audio, nil
	}
	return audio.NewAudioData(audio.SilencePCM(100, p.sampleRate()), p.sampleRate(), 1), nil
}

// SampleRate returns Rate, defaulting to 24kHz.
func (p *Provider) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampleRate()
}

func (p *Provider) sampleRate() int {
	if p.Rate <= 0 {
		return 24000
	}
	return p.Rate
}

// Name returns ProviderName or "mock".
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// SynthesizeCallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// ResetCalls clears all recorded calls. Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
