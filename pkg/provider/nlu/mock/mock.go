// Package mock provides a mock NLU provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	"github.com/attalus-io/vestibule/pkg/types"
)

// RecognizeCall records a single call to Recognize.
type RecognizeCall struct {
	Req nlu.Request
}

// Provider is a mock implementation of nlu.Provider for testing. It returns
// scripted intents in order and records every call.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Intents are returned by successive Recognize calls. When exhausted,
	// Recognize returns nlu.ErrNoMatch.
	Intents []types.Intent

	// RecognizeErr, if set, is returned by every Recognize call.
	RecognizeErr error

	// RecognizeCalls records all Recognize invocations.
	RecognizeCalls []RecognizeCall

	// Donations records every manifest passed to AddDonation.
	Donations []*donation.Donation

	recognizeIdx int
}

var (
	_ nlu.Provider     = (*Provider)(nil)
	_ nlu.DonationSink = (*Provider)(nil)
)

// Recognize returns the next scripted intent.
func (p *Provider) Recognize(_ context.Context, req nlu.Request) (types.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RecognizeCalls = append(p.RecognizeCalls, RecognizeCall{Req: req})
	if p.RecognizeErr != nil {
		return types.Intent{}, p.RecognizeErr
	}
	if p.recognizeIdx >= len(p.Intents) {
		return types.Intent{}, nlu.ErrNoMatch
	}
	in := p.Intents[p.recognizeIdx]
	p.recognizeIdx++
	if in.SessionID == "" {
		in.SessionID = req.SessionID
	}
	if in.RawText == "" {
		in.RawText = req.Text
	}
	return in, nil
}

// AddDonation records the manifest.
func (p *Provider) AddDonation(d *donation.Donation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Donations = append(p.Donations, d)
}

// Name returns the mock provider name.
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// RecognizeCallCount returns the number of Recognize calls made.
func (p *Provider) RecognizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.RecognizeCalls)
}

// ResetCalls clears all recorded calls and replays scripted intents from the
// beginning.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RecognizeCalls = nil
	p.Donations = nil
	p.recognizeIdx = 0
}
