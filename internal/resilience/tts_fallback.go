package resilience

import (
	"context"
	"strings"

	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
// With the console provider registered last the chain cannot fail outright:
// console synthesis always succeeds and degrades the response to text only.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders text with the first healthy provider. The returned frame
// carries the sample rate of whichever provider produced it, which may differ
// from [TTSFallback.SampleRate] when a fallback served the request.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, opts tts.Options) (audio.AudioData, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (audio.AudioData, error) {
		return p.Synthesize(ctx, text, opts)
	})
}

// SampleRate returns the preferred provider's output rate. Playback should
// trust the rate stamped on each frame instead, since fallback providers may
// synthesize at a different rate.
func (f *TTSFallback) SampleRate() int {
	return f.group.Primary().SampleRate()
}

// Name lists the chain entries joined by ">".
func (f *TTSFallback) Name() string {
	return strings.Join(f.group.Names(), ">")
}

// Health reports the breaker state of every chain entry.
func (f *TTSFallback) Health() []ProviderHealth {
	return f.group.Health()
}
