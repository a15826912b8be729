package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/asr"
	"github.com/attalus-io/vestibule/pkg/provider/voicetrigger"
	vttextmatch "github.com/attalus-io/vestibule/pkg/provider/voicetrigger/textmatch"
	"github.com/attalus-io/vestibule/pkg/textmatch"
)

// defaultTriggerThreshold gates detections when the configuration does not
// set a threshold.
const defaultTriggerThreshold = 0.7

// VoiceTrigger is the wake-phrase detection component. Voice deployments
// pass every captured utterance through it; only utterances that open with
// a configured phrase continue into the pipeline, with the wake words
// stripped off.
type VoiceTrigger struct {
	provider  voicetrigger.Provider
	threshold float64
	rate      int
	channels  int

	audio        *Audio
	privateAudio bool
}

var _ component.Component = (*VoiceTrigger)(nil)

// NewVoiceTrigger returns an uninitialized wake-phrase component.
func NewVoiceTrigger() *VoiceTrigger { return &VoiceTrigger{} }

func (c *VoiceTrigger) Name() string { return config.ComponentVoiceTrigger }

func (c *VoiceTrigger) Dependencies() []string {
	return []string{config.ComponentASR, config.ComponentAudio}
}

// Init builds the detector. The textmatch detector reuses the recognition
// component's primary provider as its transcription backend, so a missing
// ASR component fails initialization.
func (c *VoiceTrigger) Init(_ context.Context, deps *component.Deps) error {
	if deps.Config == nil {
		return fmt.Errorf("voice_trigger: configuration required")
	}
	cfg := deps.Config.VoiceTrigger
	if len(cfg.Phrases) == 0 {
		return fmt.Errorf("voice_trigger: at least one wake phrase is required")
	}
	c.threshold = cfg.Threshold
	if c.threshold == 0 {
		c.threshold = defaultTriggerThreshold
	}
	c.rate = cfg.SampleRate
	if c.rate == 0 {
		c.rate = fallbackSampleRate
	}
	c.channels = cfg.Channels
	if c.channels == 0 {
		c.channels = 1
	}

	name := cfg.DefaultProvider
	if name == "" {
		name = "textmatch"
	}
	if deps.Providers != nil {
		entry, ok := findEntry(cfg.Providers, name)
		if !ok {
			entry = config.ProviderEntry{Name: name}
		}
		p, err := deps.Providers.CreateVoiceTrigger(entry)
		if err == nil {
			c.provider = p
		} else if !errors.Is(err, config.ErrProviderNotRegistered) {
			return fmt.Errorf("voice_trigger: %w", err)
		}
	}
	switch {
	case c.provider != nil:
		// Registry-supplied detector.
	case name == "textmatch":
		comp, ok := deps.Components.Get(config.ComponentASR)
		if !ok {
			return fmt.Errorf("voice_trigger: asr component not available")
		}
		asrComp, ok := comp.(*ASR)
		if !ok {
			return fmt.Errorf("voice_trigger: asr component has unexpected type %T", comp)
		}
		p, err := newTextmatchTrigger(asrComp.Recognizer(), cfg.Phrases, c.threshold)
		if err != nil {
			return fmt.Errorf("voice_trigger: %w", err)
		}
		c.provider = p
	default:
		return fmt.Errorf("%w: voice_trigger %q", ErrUnknownProvider, name)
	}
	if len(cfg.FallbackProviders) > 0 {
		slog.Warn("voice_trigger fallback providers are not supported, ignoring",
			"providers", cfg.FallbackProviders)
	}

	if a, ok := deps.Components.Get(config.ComponentAudio); ok {
		if ac, ok := a.(*Audio); ok {
			c.audio = ac
		}
	}
	if c.audio == nil {
		c.audio = NewAudio()
		c.privateAudio = true
		if err := c.audio.Init(context.Background(), &component.Deps{Collector: deps.Collector}); err != nil {
			return fmt.Errorf("voice_trigger: private audio processor: %w", err)
		}
	}
	return nil
}

func (c *VoiceTrigger) Shutdown(ctx context.Context) error {
	if c.privateAudio {
		return c.audio.Shutdown(ctx)
	}
	return nil
}

// Detect examines one utterance for a wake phrase. Frames are converted to
// a rate the detector accepts unless the detector resamples internally.
// Detections under the configured threshold are discarded.
func (c *VoiceTrigger) Detect(ctx context.Context, frame audio.AudioData) (*voicetrigger.Detection, error) {
	if !c.provider.SupportsResampling() {
		prepared, err := c.audio.EnsureFormat(ctx, frame, c.targetRate(frame), c.channels,
			config.ComponentVoiceTrigger, audio.UseCaseVoiceTrigger)
		if err != nil {
			return nil, fmt.Errorf("voice_trigger: %w", err)
		}
		frame = prepared
	}
	det, err := c.provider.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("voice_trigger: %w", err)
	}
	if det != nil && det.Confidence < c.threshold {
		slog.Debug("wake phrase below threshold",
			"heard", det.Heard, "confidence", det.Confidence)
		return nil, nil
	}
	return det, nil
}

// newTextmatchTrigger builds the phonetic detector over a transcription
// backend, with the detection threshold doubling as the match threshold.
func newTextmatchTrigger(recognizer asr.Provider, phrases []string, threshold float64) (voicetrigger.Provider, error) {
	matcher := textmatch.New(textmatch.WithPhoneticThreshold(threshold))
	return vttextmatch.New(recognizer, phrases, vttextmatch.WithMatcher(matcher))
}

// targetRate picks the detection rate: a frame already at a rate the
// detector prefers passes through, otherwise its first preference wins.
func (c *VoiceTrigger) targetRate(frame audio.AudioData) int {
	preferred := c.provider.PreferredSampleRates()
	for _, r := range preferred {
		if r == frame.SampleRate {
			return frame.SampleRate
		}
	}
	if len(preferred) > 0 {
		return preferred[0]
	}
	return c.rate
}
