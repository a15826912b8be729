package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/resilience"
	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
	ttsconsole "github.com/attalus-io/vestibule/pkg/provider/tts/console"
)

// ConsoleTTSName is the factory name of the degraded-mode synthesis
// component. It is registered as the fallback for [config.ComponentTTS].
const ConsoleTTSName = "console_tts"

// Synthesizer is what the rest of the system needs from a synthesis
// component. Both the full TTS component and its console fallback satisfy
// it, so callers looking the component up by name work in degraded mode.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts tts.Options) (audio.AudioData, error)
	SampleRate() int
}

// TTS is the speech synthesis component. It fronts a provider fallback
// chain that always ends in the console provider, so the assistant keeps
// answering in text even when every audio backend is down.
type TTS struct {
	chain *resilience.TTSFallback
	voice string
	speed float64
}

var (
	_ component.Component = (*TTS)(nil)
	_ Synthesizer         = (*TTS)(nil)
)

// NewTTS returns an uninitialized synthesis component.
func NewTTS() *TTS { return &TTS{} }

func (c *TTS) Name() string { return config.ComponentTTS }

func (c *TTS) Dependencies() []string { return nil }

// Init constructs the provider chain. An unset default provider selects the
// console backend outright.
func (c *TTS) Init(_ context.Context, deps *component.Deps) error {
	if deps.Config == nil {
		return fmt.Errorf("tts: configuration required")
	}
	cfg := deps.Config.TTS
	c.voice = cfg.Voice
	c.speed = cfg.Speed

	primaryName := cfg.DefaultProvider
	if primaryName == "" {
		primaryName = "console"
	}
	var primary tts.Provider
	if primaryName == "console" {
		primary = ttsconsole.New()
	} else {
		entry, ok := findEntry(cfg.Providers, primaryName)
		if !ok {
			return fmt.Errorf("tts: default provider %q not configured or disabled", primaryName)
		}
		p, err := buildTTSProvider(deps.Providers, entry)
		if err != nil {
			return fmt.Errorf("tts: %w", err)
		}
		primary = p
	}

	c.chain = resilience.NewTTSFallback(primary, primaryName, resilience.FallbackConfig{})
	haveConsole := primaryName == "console"
	for _, name := range cfg.FallbackProviders {
		if name == "console" {
			c.chain.AddFallback("console", ttsconsole.New())
			haveConsole = true
			continue
		}
		entry, ok := findEntry(cfg.Providers, name)
		if !ok {
			slog.Warn("tts fallback provider not configured", "provider", name)
			continue
		}
		p, err := buildTTSProvider(deps.Providers, entry)
		if err != nil {
			slog.Warn("tts fallback provider construction failed", "provider", name, "error", err)
			continue
		}
		c.chain.AddFallback(name, p)
	}
	if !haveConsole {
		c.chain.AddFallback("console", ttsconsole.New())
	}
	return nil
}

func (c *TTS) Shutdown(context.Context) error { return nil }

// Synthesize renders text through the provider chain. Option fields left
// zero by the caller are filled from the configuration.
func (c *TTS) Synthesize(ctx context.Context, text string, opts tts.Options) (audio.AudioData, error) {
	if opts.Voice == "" {
		opts.Voice = c.voice
	}
	if opts.Speed == 0 {
		opts.Speed = c.speed
	}
	return c.chain.Synthesize(ctx, text, opts)
}

// SampleRate reports the primary provider's output rate.
func (c *TTS) SampleRate() int { return c.chain.SampleRate() }

// Health reports the provider chain's circuit breaker states.
func (c *TTS) Health() []resilience.ProviderHealth { return c.chain.Health() }

// ConsoleTTS is the degraded-mode synthesis component: console output only,
// no provider chain, nothing that can fail. The component manager
// substitutes it when the full TTS component cannot initialize.
type ConsoleTTS struct {
	p *ttsconsole.Provider
}

var (
	_ component.Component = (*ConsoleTTS)(nil)
	_ Synthesizer         = (*ConsoleTTS)(nil)
)

// NewConsoleTTS returns the console-only synthesis component.
func NewConsoleTTS() *ConsoleTTS { return &ConsoleTTS{} }

func (c *ConsoleTTS) Name() string { return ConsoleTTSName }

func (c *ConsoleTTS) Dependencies() []string { return nil }

func (c *ConsoleTTS) Init(context.Context, *component.Deps) error {
	c.p = ttsconsole.New()
	return nil
}

func (c *ConsoleTTS) Shutdown(context.Context) error { return nil }

func (c *ConsoleTTS) Synthesize(ctx context.Context, text string, opts tts.Options) (audio.AudioData, error) {
	return c.p.Synthesize(ctx, text, opts)
}

func (c *ConsoleTTS) SampleRate() int { return c.p.SampleRate() }
