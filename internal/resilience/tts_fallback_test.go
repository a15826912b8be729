package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
	"github.com/attalus-io/vestibule/pkg/provider/tts/mock"
)

func TestTTSFallback_PrimaryServes(t *testing.T) {
	primary := &mock.Provider{ProviderName: "openai", Rate: 24000}
	fallback := &mock.Provider{ProviderName: "console", Rate: 16000}

	chain := NewTTSFallback(primary, "openai", FallbackConfig{})
	chain.AddFallback("console", fallback)

	frame, err := chain.Synthesize(context.Background(), "привет", tts.Options{Voice: "alloy"})
	require.NoError(t, err)
	assert.Equal(t, 24000, frame.SampleRate, "frame should carry the primary's rate")
	require.Len(t, primary.SynthesizeCalls, 1)
	assert.Equal(t, "alloy", primary.SynthesizeCalls[0].Opts.Voice)
	assert.Empty(t, fallback.SynthesizeCalls, "fallback should not be called")
}

func TestTTSFallback_FailsOverToConsole(t *testing.T) {
	primary := &mock.Provider{ProviderName: "openai", SynthesizeErr: errors.New("api down")}
	fallback := &mock.Provider{ProviderName: "console", Rate: 16000}

	chain := NewTTSFallback(primary, "openai", FallbackConfig{})
	chain.AddFallback("console", fallback)

	frame, err := chain.Synthesize(context.Background(), "таймер готов", tts.Options{})
	require.NoError(t, err)
	assert.Equal(t, 16000, frame.SampleRate, "frame should carry the fallback's rate")
	assert.Len(t, fallback.SynthesizeCalls, 1)
}

func TestTTSFallback_AllFail(t *testing.T) {
	primary := &mock.Provider{SynthesizeErr: errors.New("down")}

	chain := NewTTSFallback(primary, "openai", FallbackConfig{})

	_, err := chain.Synthesize(context.Background(), "hi", tts.Options{})
	require.ErrorIs(t, err, ErrAllFailed)
}

func TestTTSFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &mock.Provider{ProviderName: "openai", SynthesizeErr: errors.New("down")}
	fallback := &mock.Provider{ProviderName: "console"}

	chain := NewTTSFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	chain.AddFallback("console", fallback)

	for i := 0; i < 3; i++ {
		_, err := chain.Synthesize(context.Background(), "x", tts.Options{})
		require.NoError(t, err, "call %d", i)
	}

	// After two failures the primary's breaker is open; the third call must
	// not have reached it.
	assert.Len(t, primary.SynthesizeCalls, 2)
	assert.Len(t, fallback.SynthesizeCalls, 3)

	health := chain.Health()
	assert.Equal(t, "open", health[0].State, "primary breaker state")
}

func TestTTSFallback_NameAndRate(t *testing.T) {
	primary := &mock.Provider{Rate: 24000}
	chain := NewTTSFallback(primary, "openai", FallbackConfig{})
	chain.AddFallback("console", &mock.Provider{Rate: 16000})

	assert.Equal(t, "openai>console", chain.Name())
	assert.Equal(t, 24000, chain.SampleRate())
}

func TestTTSFallback_ImplementsProvider(t *testing.T) {
	var p tts.Provider = NewTTSFallback(&mock.Provider{}, "mock", FallbackConfig{})
	frame, err := p.Synthesize(context.Background(), "ok", tts.Options{})
	require.NoError(t, err)
	assert.Equal(t, audio.FormatPCM16, frame.Format)
}
