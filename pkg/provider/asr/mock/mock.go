// Package mock provides test doubles for the asr package interfaces.
//
// Use Provider to script transcription results and inspect which frames were
// delivered:
//
//	p := &mock.Provider{
//	    Results: []asr.Result{{Text: "turn on the light", Confidence: 0.9}},
//	}
//	res, _ := p.Transcribe(ctx, frame)
package mock

import (
	"context"
	"sync"

	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Frame is the frame passed to Transcribe. The payload is not copied;
	// frames are immutable by convention.
	Frame audio.AudioData
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock" when empty.
	ProviderName string

	// Results are returned by successive Transcribe calls in order. When the
	// list is exhausted the last entry repeats; when empty, a zero Result is
	// returned.
	Results []asr.Result

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// ResetErr, if non-nil, is returned by Reset.
	ResetErr error

	// SampleRates is returned by PreferredSampleRates. Defaults to [16000].
	SampleRates []int

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int
}

// Transcribe records the call and returns the next scripted Result.
func (p *Provider) Transcribe(_ context.Context, frame audio.AudioData) (asr.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Frame: frame})
	if p.TranscribeErr != nil {
		return asr.Result{}, p.TranscribeErr
	}
	if len(p.Results) == 0 {
		return asr.Result{}, nil
	}
	idx := len(p.TranscribeCalls) - 1
	if idx >= len(p.Results) {
		idx = len(p.Results) - 1
	}
	return p.Results[idx], nil
}

// PreferredSampleRates returns SampleRates, defaulting to 16kHz.
func (p *Provider) PreferredSampleRates() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.SampleRates) == 0 {
		return []int{16000}
	}
	return p.SampleRates
}

// SupportsSampleRate reports whether rate appears in PreferredSampleRates.
func (p *Provider) SupportsSampleRate(rate int) bool {
	for _, r := range p.PreferredSampleRates() {
		if r == rate {
			return true
		}
	}
	return false
}

// Reset records the call and returns ResetErr.
func (p *Provider) Reset(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ResetCallCount++
	return p.ResetErr
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

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) TranscribeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// ResetCalls clears all recorded calls. Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.ResetCallCount = 0
}

// Ensure Provider implements asr.Provider at compile time.
var _ asr.Provider = (*Provider)(nil)
