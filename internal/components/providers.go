package components

import (
	"errors"
	"fmt"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/pkg/provider/asr"
	asropenai "github.com/attalus-io/vestibule/pkg/provider/asr/openai"
	"github.com/attalus-io/vestibule/pkg/provider/llm"
	"github.com/attalus-io/vestibule/pkg/provider/llm/anyllm"
	llmmock "github.com/attalus-io/vestibule/pkg/provider/llm/mock"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	"github.com/attalus-io/vestibule/pkg/provider/nlu/fuzzy"
	"github.com/attalus-io/vestibule/pkg/provider/nlu/keyword"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
	ttsconsole "github.com/attalus-io/vestibule/pkg/provider/tts/console"
	ttsopenai "github.com/attalus-io/vestibule/pkg/provider/tts/openai"
	"github.com/attalus-io/vestibule/pkg/textmatch"
)

// ErrUnknownProvider reports a provider entry whose name no constructor
// recognizes. Surfaces as a component initialization failure.
var ErrUnknownProvider = errors.New("unknown provider")

// findEntry locates the enabled provider entry with the given name.
func findEntry(entries []config.ProviderEntry, name string) (config.ProviderEntry, bool) {
	for _, e := range entries {
		if e.Name == name && e.IsEnabled() {
			return e, true
		}
	}
	return config.ProviderEntry{}, false
}

// entryDuration reads a duration out of an entry's options map, accepting
// either a Go duration string or a number of seconds.
func entryDuration(e config.ProviderEntry, key string) (time.Duration, bool) {
	v, ok := e.Options[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d, true
		}
	case int:
		return time.Duration(val) * time.Second, true
	case float64:
		return time.Duration(val * float64(time.Second)), true
	}
	return 0, false
}

func entryString(e config.ProviderEntry, key string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return ""
}

// buildASRProvider constructs the recognition backend an entry names. A
// registry entry under the same name takes precedence over the built-ins.
func buildASRProvider(reg *config.Registry, e config.ProviderEntry) (asr.Provider, error) {
	if reg != nil {
		p, err := reg.CreateASR(e)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			return nil, err
		}
	}
	switch e.Name {
	case "openai":
		opts := []asropenai.Option{}
		if e.BaseURL != "" {
			opts = append(opts, asropenai.WithBaseURL(e.BaseURL))
		}
		if d, ok := entryDuration(e, "timeout"); ok {
			opts = append(opts, asropenai.WithTimeout(d))
		}
		if lang := entryString(e, "language"); lang != "" {
			opts = append(opts, asropenai.WithLanguage(lang))
		}
		if prompt := entryString(e, "prompt"); prompt != "" {
			opts = append(opts, asropenai.WithPrompt(prompt))
		}
		return asropenai.New(e.APIKey, e.Model, opts...)
	default:
		return nil, fmt.Errorf("%w: asr %q", ErrUnknownProvider, e.Name)
	}
}

// buildTTSProvider constructs the synthesis backend an entry names.
func buildTTSProvider(reg *config.Registry, e config.ProviderEntry) (tts.Provider, error) {
	if reg != nil {
		p, err := reg.CreateTTS(e)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			return nil, err
		}
	}
	switch e.Name {
	case "openai":
		opts := []ttsopenai.Option{}
		if e.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(e.BaseURL))
		}
		if d, ok := entryDuration(e, "timeout"); ok {
			opts = append(opts, ttsopenai.WithTimeout(d))
		}
		if voice := entryString(e, "voice"); voice != "" {
			opts = append(opts, ttsopenai.WithVoice(voice))
		}
		return ttsopenai.New(e.APIKey, e.Model, opts...)
	case "console":
		return ttsconsole.New(), nil
	default:
		return nil, fmt.Errorf("%w: tts %q", ErrUnknownProvider, e.Name)
	}
}

// buildNLUProvider constructs the recognizer an entry names. The keyword and
// fuzzy recognizers start empty and learn phrases from handler donations.
func buildNLUProvider(reg *config.Registry, e config.ProviderEntry) (nlu.Provider, error) {
	if reg != nil {
		p, err := reg.CreateNLU(e)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			return nil, err
		}
	}
	switch e.Name {
	case "donation", "keyword":
		// The donation recognizer matches utterances against the exact
		// phrases handlers donate; "keyword" is the historical name.
		return keyword.New(), nil
	case "fuzzy":
		var opts []textmatch.Option
		if th, ok := e.Options["phonetic_threshold"].(float64); ok {
			opts = append(opts, textmatch.WithPhoneticThreshold(th))
		}
		if th, ok := e.Options["fuzzy_threshold"].(float64); ok {
			opts = append(opts, textmatch.WithFuzzyThreshold(th))
		}
		return fuzzy.New(opts...), nil
	default:
		return nil, fmt.Errorf("%w: nlu %q", ErrUnknownProvider, e.Name)
	}
}

// buildLLMProvider constructs the completion backend an entry names. Backend
// names follow the any-llm provider identifiers; "mock" returns a scripted
// provider for offline runs.
func buildLLMProvider(reg *config.Registry, e config.ProviderEntry) (llm.Provider, error) {
	if reg != nil {
		p, err := reg.CreateLLM(e)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			return nil, err
		}
	}
	if e.Name == "mock" {
		return &llmmock.Provider{}, nil
	}
	var opts []anyllmlib.Option
	if e.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
	}
	if e.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
	}
	return anyllm.New(e.Name, e.Model, opts...)
}
