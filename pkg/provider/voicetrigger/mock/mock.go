// Package mock provides test doubles for the voicetrigger package interfaces.
//
// Use Provider to script detections and inspect which frames were examined:
//
//	p := &mock.Provider{
//	    Detections: []*voicetrigger.Detection{{Phrase: "jarvis", Confidence: 0.95}},
//	}
//	det, _ := p.Detect(ctx, frame)
package mock

import (
	"context"
	"sync"

	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/voicetrigger"
)

// DetectCall records a single invocation of Provider.Detect.
type DetectCall struct {
	// Frame is the frame passed to Detect.
	Frame audio.AudioData
}

// Provider is a mock implementation of voicetrigger.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock" when empty.
	ProviderName string

	// Detections are returned by successive Detect calls in order. A nil
	// entry means "no wake phrase". When the list is exhausted, nil is
	// returned.
	Detections []*voicetrigger.Detection

	// DetectErr, if non-nil, is returned by every Detect call.
	DetectErr error

	// SampleRates is returned by PreferredSampleRates. Defaults to [16000].
	SampleRates []int

	// Resamples is returned by SupportsResampling.
	Resamples bool

	// DetectCalls records every call to Detect in order.
	DetectCalls []DetectCall
}

// Detect records the call and returns the next scripted Detection.
func (p *Provider) Detect(_ context.Context, frame audio.AudioData) (*voicetrigger.Detection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DetectCalls = append(p.DetectCalls, DetectCall{Frame: frame})
	if p.DetectErr != nil {
		return nil, p.DetectErr
	}
	idx := len(p.DetectCalls) - 1
	if idx >= len(p.Detections) {
		return nil, nil
	}
	return p.Detections[idx], nil
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

// SupportsResampling returns Resamples.
func (p *Provider) SupportsResampling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Resamples
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

// DetectCallCount returns the number of Detect calls. Thread-safe.
func (p *Provider) DetectCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.DetectCalls)
}

// ResetCalls clears all recorded calls. Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DetectCalls = nil
}

// Ensure Provider implements voicetrigger.Provider at compile time.
var _ voicetrigger.Provider = (*Provider)(nil)
