package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/resilience"
	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/asr"
)

// ErrSampleRateMismatch reports a frame whose rate no provider accepts
// while resampling is disabled by configuration.
var ErrSampleRateMismatch = errors.New("sample rate mismatch and resampling disabled")

// fallbackSampleRate is forced when a provider declares no preferences at
// all. 16 kHz is what every speech model in practice accepts.
const fallbackSampleRate = 16000

// ASR is the speech recognition component. It fronts a provider fallback
// chain and owns rate negotiation: the configuration's sample_rate is
// authoritative when set, otherwise each provider's preferences decide, and
// frames are converted through the shared resampler before transcription.
type ASR struct {
	group        *resilience.FallbackGroup[asr.Provider]
	providers    []asr.Provider
	audio        *Audio
	privateAudio bool
	rate         int
	channels     int
	resample     bool
}

var _ component.Component = (*ASR)(nil)

// NewASR returns an uninitialized recognition component.
func NewASR() *ASR { return &ASR{} }

func (c *ASR) Name() string { return config.ComponentASR }

func (c *ASR) Dependencies() []string { return []string{config.ComponentAudio} }

// Init constructs the provider chain from the configuration.
func (c *ASR) Init(_ context.Context, deps *component.Deps) error {
	if deps.Config == nil {
		return fmt.Errorf("asr: configuration required")
	}
	cfg := deps.Config.ASR

	entry, ok := findEntry(cfg.Providers, cfg.DefaultProvider)
	if !ok {
		return fmt.Errorf("asr: default provider %q not configured or disabled", cfg.DefaultProvider)
	}
	primary, err := buildASRProvider(deps.Providers, entry)
	if err != nil {
		return fmt.Errorf("asr: %w", err)
	}
	c.group = resilience.NewFallbackGroup(primary, entry.Name, resilience.FallbackConfig{})
	c.providers = []asr.Provider{primary}
	for _, name := range cfg.FallbackProviders {
		fe, ok := findEntry(cfg.Providers, name)
		if !ok {
			slog.Warn("asr fallback provider not configured", "provider", name)
			continue
		}
		p, err := buildASRProvider(deps.Providers, fe)
		if err != nil {
			slog.Warn("asr fallback provider construction failed", "provider", name, "error", err)
			continue
		}
		c.group.AddFallback(fe.Name, p)
		c.providers = append(c.providers, p)
	}

	c.rate = cfg.SampleRate
	c.channels = cfg.Channels
	if c.channels == 0 {
		c.channels = 1
	}
	c.resample = cfg.ResamplingAllowed()

	if a, ok := deps.Components.Get(config.ComponentAudio); ok {
		if ac, ok := a.(*Audio); ok {
			c.audio = ac
		}
	}
	if c.audio == nil {
		// No shared cache available; conversions still work, they just
		// are not shared with the trigger path.
		c.audio = NewAudio()
		c.privateAudio = true
		if err := c.audio.Init(context.Background(), &component.Deps{Collector: deps.Collector}); err != nil {
			return fmt.Errorf("asr: private audio processor: %w", err)
		}
	}
	return nil
}

func (c *ASR) Shutdown(ctx context.Context) error {
	if c.privateAudio {
		return c.audio.Shutdown(ctx)
	}
	return nil
}

// Transcribe recognizes one utterance, walking the provider chain until one
// succeeds. A provider that fails has its recognition state reset before
// the chain moves on.
func (c *ASR) Transcribe(ctx context.Context, frame audio.AudioData) (asr.Result, error) {
	res, serving, err := resilience.ExecuteNamed(c.group, func(name string, p asr.Provider) (asr.Result, error) {
		prepared, err := c.prepare(ctx, p, frame)
		if err != nil {
			return asr.Result{}, err
		}
		r, err := p.Transcribe(ctx, prepared)
		if err != nil {
			if resetErr := p.Reset(ctx); resetErr != nil {
				slog.Warn("asr provider reset failed", "provider", name, "error", resetErr)
			}
			return asr.Result{}, err
		}
		return r, nil
	})
	if err != nil {
		return asr.Result{}, fmt.Errorf("asr: %w", err)
	}
	if serving != c.group.Names()[0] {
		slog.Info("asr served by fallback", "provider", serving)
	}
	return res, nil
}

// Reset clears recognition state across the whole chain, used at stream
// boundaries so context biasing does not leak between utterances.
func (c *ASR) Reset(ctx context.Context) {
	for _, p := range c.providers {
		if err := p.Reset(ctx); err != nil {
			slog.Warn("asr provider reset failed", "provider", p.Name(), "error", err)
		}
	}
}

// PrepareInput converts a frame to the primary recognizer's negotiated
// format through the shared conversion cache. Streaming endpoints call it
// separately from Transcribe so conversion metadata (resampling applied,
// cache hit) reaches the client.
func (c *ASR) PrepareInput(ctx context.Context, frame audio.AudioData) (audio.AudioData, error) {
	return c.prepare(ctx, c.group.Primary(), frame)
}

// ProviderName names the primary recognizer for result attribution.
func (c *ASR) ProviderName() string { return c.group.Primary().Name() }

// Recognizer returns the primary provider, which the wake-phrase detector
// reuses as its transcription backend.
func (c *ASR) Recognizer() asr.Provider { return c.group.Primary() }

// Health reports the provider chain's circuit breaker states.
func (c *ASR) Health() []resilience.ProviderHealth { return c.group.Health() }

// prepare negotiates the frame format for one provider. The configured rate
// wins when set; otherwise a frame the provider already accepts passes
// through, and anything else converts to the provider's first preference.
func (c *ASR) prepare(ctx context.Context, p asr.Provider, frame audio.AudioData) (audio.AudioData, error) {
	target := c.rate
	if target == 0 {
		switch {
		case p.SupportsSampleRate(frame.SampleRate):
			target = frame.SampleRate
		case len(p.PreferredSampleRates()) > 0:
			target = p.PreferredSampleRates()[0]
		default:
			target = fallbackSampleRate
		}
	}
	if target != frame.SampleRate && !c.resample {
		return audio.AudioData{}, fmt.Errorf("%w: frame %dHz, provider %s wants %dHz",
			ErrSampleRateMismatch, frame.SampleRate, p.Name(), target)
	}
	return c.audio.EnsureFormat(ctx, frame, target, c.channels, config.ComponentASR, audio.UseCaseASR)
}
