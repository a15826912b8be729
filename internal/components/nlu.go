package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	"github.com/attalus-io/vestibule/pkg/textmatch"
	"github.com/attalus-io/vestibule/pkg/types"
)

// defaultNLUThreshold is the confidence floor when the configuration does
// not set one.
const defaultNLUThreshold = 0.5

// NLUFallbackEntity marks an intent produced by the below-threshold
// fallback rather than a recognizer match. Its value records the best
// sub-threshold candidate so downstream stages can tell a near miss from
// a total miss without touching the confidence field.
const NLUFallbackEntity = "_nlu_fallback"

// contextualSpokenForms maps bare contextual commands to the utterances
// that mean them. A whole utterance equal to one of these forms becomes a
// "contextual.<command>" intent for target resolution; utterances that name
// a target ("отмени таймер") fall through to the recognizer chain instead.
var contextualSpokenForms = map[string][]string{
	"stop":     {"стоп", "останови", "остановись", "хватит", "stop"},
	"cancel":   {"отмена", "отмени", "cancel"},
	"pause":    {"пауза", "приостанови", "pause"},
	"resume":   {"продолжи", "продолжай", "resume"},
	"continue": {"дальше", "continue"},
}

type namedRecognizer struct {
	name string
	p    nlu.Provider
}

// NLU is the intent recognition component. It runs the configured
// recognizer chain (the voice-selected provider first) and routes anything
// below the confidence floor to conversation.general, so every utterance
// produces an intent.
type NLU struct {
	threshold  float64
	aliases    map[string][]string
	matcher    *textmatch.Matcher
	contextual map[string]string

	mu        sync.RWMutex
	providers []namedRecognizer
	active    int
}

var (
	_ component.Component        = (*NLU)(nil)
	_ component.DonationConsumer = (*NLU)(nil)
)

// NewNLU returns an uninitialized recognition component.
func NewNLU() *NLU { return &NLU{} }

func (c *NLU) Name() string { return config.ComponentNLU }

func (c *NLU) Dependencies() []string { return nil }

// Init constructs the recognizer chain from the configuration. With no
// providers configured the chain defaults to keyword matching followed by
// fuzzy matching.
func (c *NLU) Init(_ context.Context, deps *component.Deps) error {
	cfg := config.NLUConfig{}
	if deps.Config != nil {
		cfg = deps.Config.NLU
	}

	names := make([]string, 0, 1+len(cfg.FallbackProviders))
	if cfg.DefaultProvider != "" {
		names = append(names, cfg.DefaultProvider)
	}
	names = append(names, cfg.FallbackProviders...)
	if len(names) == 0 {
		names = []string{"keyword", "fuzzy"}
	}

	for _, name := range names {
		entry, ok := findEntry(cfg.Providers, name)
		if !ok {
			entry = config.ProviderEntry{Name: name}
		}
		p, err := buildNLUProvider(deps.Providers, entry)
		if err != nil {
			return fmt.Errorf("nlu: %w", err)
		}
		c.providers = append(c.providers, namedRecognizer{name: name, p: p})
	}

	c.threshold = cfg.ConfidenceThreshold
	if c.threshold == 0 {
		c.threshold = defaultNLUThreshold
	}
	c.aliases = cfg.ProviderAliases
	c.matcher = textmatch.New()

	commands := contextualCommandIDs(deps)
	c.contextual = make(map[string]string)
	for _, cmd := range commands {
		for _, form := range contextualSpokenForms[cmd] {
			c.contextual[form] = cmd
		}
	}
	return nil
}

// contextualCommandIDs returns the enabled bare-command vocabulary: the
// configured list, or every built-in form when the configuration is silent.
func contextualCommandIDs(deps *component.Deps) []string {
	if deps.Config != nil && len(deps.Config.IntentSystem.ContextualCommands) > 0 {
		return deps.Config.IntentSystem.ContextualCommands
	}
	ids := make([]string, 0, len(contextualSpokenForms))
	for cmd := range contextualSpokenForms {
		ids = append(ids, cmd)
	}
	return ids
}

func (c *NLU) Shutdown(context.Context) error { return nil }

// ConsumeDonations feeds handler manifests to every recognizer that
// accepts them.
func (c *NLU) ConsumeDonations(donations []*donation.Donation) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.providers {
		sink, ok := r.p.(nlu.DonationSink)
		if !ok {
			continue
		}
		for _, d := range donations {
			sink.AddDonation(d)
		}
	}
	return nil
}

// Recognize maps an utterance to an intent. A whole utterance that is a
// bare contextual command short-circuits to the contextual pseudo-domain.
// Otherwise the chain runs with the active provider first and the first
// result at or above the confidence floor wins. When nothing clears the
// floor the utterance routes to conversation.general at full confidence
// with the original text as an entity, never an error: open conversation
// is the designed catch-all. The best sub-threshold candidate, if any,
// rides along under NLUFallbackEntity.
func (c *NLU) Recognize(ctx context.Context, req nlu.Request) (types.Intent, error) {
	if cmd, ok := c.contextual[strings.ToLower(strings.TrimSpace(req.Text))]; ok {
		return types.NewIntent("contextual."+cmd, req.Text, req.SessionID, 1.0), nil
	}

	c.mu.RLock()
	chain := make([]namedRecognizer, 0, len(c.providers))
	chain = append(chain, c.providers[c.active:]...)
	chain = append(chain, c.providers[:c.active]...)
	c.mu.RUnlock()

	var (
		best    types.Intent
		haveSub bool
	)
	for _, r := range chain {
		in, err := r.p.Recognize(ctx, req)
		if err != nil {
			if !errors.Is(err, nlu.ErrNoMatch) {
				slog.Warn("nlu provider failed", "provider", r.name, "error", err)
			}
			continue
		}
		if in.Confidence >= c.threshold {
			return in, nil
		}
		if !haveSub || in.Confidence > best.Confidence {
			best = in
			haveSub = true
		}
	}

	in := types.NewIntent("conversation.general", req.Text, req.SessionID, 1.0)
	in.Entities["text"] = req.Text
	fallback := map[string]any{"best_confidence": 0.0}
	if haveSub {
		fallback["best_confidence"] = best.Confidence
		fallback["best_intent"] = best.Name
	}
	in.Entities[NLUFallbackEntity] = fallback
	return in, nil
}

// SwitchProvider resolves a spoken provider name against the configured
// aliases and makes that recognizer the preferred one. Returns the resolved
// provider and whether anything matched.
func (c *NLU) SwitchProvider(heard string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.providers {
		candidates := append([]string{r.name}, c.aliases[r.name]...)
		if _, _, ok := c.matcher.Match(heard, candidates); ok {
			c.active = i
			slog.Info("nlu provider switched", "provider", r.name)
			return r.name, true
		}
	}
	return "", false
}

// ActiveProvider reports which recognizer currently runs first.
func (c *NLU) ActiveProvider() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.providers) == 0 {
		return ""
	}
	return c.providers[c.active].name
}
