// Package textmatch provides a wake-phrase detector that transcribes the
// utterance and matches the leading words against configured phrases
// phonetically. It trades latency for zero extra model weight: any ASR
// backend doubles as the trigger, which suits deployments without a dedicated
// keyword-spotting model.
package textmatch

import (
	"context"
	"fmt"

	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/asr"
	"github.com/attalus-io/vestibule/pkg/provider/voicetrigger"
	"github.com/attalus-io/vestibule/pkg/textmatch"
)

// Provider implements voicetrigger.Provider on top of an ASR provider and a
// phonetic matcher.
type Provider struct {
	recognizer asr.Provider
	matcher    *textmatch.Matcher
	phrases    []string
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithMatcher replaces the default phonetic matcher, e.g. to tighten the
// confidence thresholds.
func WithMatcher(m *textmatch.Matcher) Option {
	return func(p *Provider) {
		p.matcher = m
	}
}

// New constructs a trigger detector over recognizer for the given wake
// phrases.
func New(recognizer asr.Provider, phrases []string, opts ...Option) (*Provider, error) {
	if recognizer == nil {
		return nil, fmt.Errorf("textmatch: recognizer must not be nil")
	}
	if len(phrases) == 0 {
		return nil, fmt.Errorf("textmatch: at least one wake phrase is required")
	}

	p := &Provider{
		recognizer: recognizer,
		matcher:    textmatch.New(),
		phrases:    phrases,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Detect implements voicetrigger.Provider.
func (p *Provider) Detect(ctx context.Context, frame audio.AudioData) (*voicetrigger.Detection, error) {
	res, err := p.recognizer.Transcribe(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("textmatch: transcribe: %w", err)
	}
	if res.Text == "" {
		return nil, nil
	}

	phrase, remainder, conf, ok := p.matcher.MatchPrefix(res.Text, p.phrases)
	if !ok {
		return nil, nil
	}
	return &voicetrigger.Detection{
		Phrase:     phrase,
		Command:    remainder,
		Heard:      res.Text,
		Confidence: conf,
	}, nil
}

// PreferredSampleRates implements voicetrigger.Provider by delegating to the
// underlying recognizer.
func (p *Provider) PreferredSampleRates() []int {
	return p.recognizer.PreferredSampleRates()
}

// SupportsResampling implements voicetrigger.Provider. The recognizer
// declares which rates it accepts, so the pipeline converts; this provider
// never does.
func (p *Provider) SupportsResampling() bool {
	return false
}

// Name implements voicetrigger.Provider.
func (p *Provider) Name() string {
	return "textmatch/" + p.recognizer.Name()
}

// Ensure Provider implements voicetrigger.Provider at compile time.
var _ voicetrigger.Provider = (*Provider)(nil)
