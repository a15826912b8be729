package components

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	nlumock "github.com/attalus-io/vestibule/pkg/provider/nlu/mock"
	"github.com/attalus-io/vestibule/pkg/types"
)

func newTestNLU(t *testing.T, cfg *config.Config) *NLU {
	t.Helper()
	c := NewNLU()
	require.NoError(t, c.Init(context.Background(), &component.Deps{Config: cfg}))
	return c
}

// withMocks swaps the recognizer chain for scripted providers.
func withMocks(c *NLU, mocks ...*nlumock.Provider) {
	c.providers = c.providers[:0]
	for i, m := range mocks {
		c.providers = append(c.providers, namedRecognizer{name: m.Name() + string(rune('a'+i)), p: m})
	}
	c.active = 0
}

func TestNLUInitDefaultChain(t *testing.T) {
	c := newTestNLU(t, nil)

	assert.Equal(t, "keyword", c.ActiveProvider())
	require.Len(t, c.providers, 2)
	assert.Equal(t, "fuzzy", c.providers[1].name)
}

func TestNLUContextualCommandShortCircuits(t *testing.T) {
	c := newTestNLU(t, nil)

	in, err := c.Recognize(context.Background(), nlu.Request{Text: " Стоп ", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "contextual.stop", in.Name)
	assert.Equal(t, 1.0, in.Confidence)
	assert.Equal(t, "s1", in.SessionID)
}

func TestNLUContextualVocabularyFollowsConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.IntentSystem.ContextualCommands = []string{"stop"}
	c := newTestNLU(t, cfg)

	in, err := c.Recognize(context.Background(), nlu.Request{Text: "стоп"})
	require.NoError(t, err)
	assert.Equal(t, "contextual.stop", in.Name)

	// "pause" is not in the configured vocabulary, so the utterance runs
	// through the recognizer chain instead.
	in, err = c.Recognize(context.Background(), nlu.Request{Text: "пауза"})
	require.NoError(t, err)
	assert.NotEqual(t, "contextual.pause", in.Name)
}

func TestNLUTargetedUtteranceSkipsContextualPass(t *testing.T) {
	c := newTestNLU(t, nil)
	m := &nlumock.Provider{Intents: []types.Intent{{Name: "timer.cancel", Confidence: 0.9}}}
	withMocks(c, m)

	in, err := c.Recognize(context.Background(), nlu.Request{Text: "отмени таймер"})
	require.NoError(t, err)
	assert.Equal(t, "timer.cancel", in.Name)
	assert.Equal(t, 1, m.RecognizeCallCount())
}

func TestNLUFirstIntentAboveThresholdWins(t *testing.T) {
	c := newTestNLU(t, nil)
	m1 := &nlumock.Provider{Intents: []types.Intent{{Name: "timer.set", Confidence: 0.8}}}
	m2 := &nlumock.Provider{Intents: []types.Intent{{Name: "media.play", Confidence: 0.95}}}
	withMocks(c, m1, m2)

	in, err := c.Recognize(context.Background(), nlu.Request{Text: "поставь таймер"})
	require.NoError(t, err)
	assert.Equal(t, "timer.set", in.Name)
	assert.Equal(t, 0, m2.RecognizeCallCount())
}

func TestNLUBelowThresholdFallsToGeneral(t *testing.T) {
	c := newTestNLU(t, nil)
	m := &nlumock.Provider{Intents: []types.Intent{{Name: "timer.set", Confidence: 0.3}}}
	withMocks(c, m)

	in, err := c.Recognize(context.Background(), nlu.Request{Text: "что-то невнятное", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "conversation.general", in.Name)
	// The fallback speaks with full confidence and keeps the utterance as
	// an entity; the near miss rides along under the fallback marker so
	// downstream stages can tell it from a total miss.
	assert.Equal(t, 1.0, in.Confidence)
	assert.Equal(t, "что-то невнятное", in.Entities["text"])
	assert.Equal(t, "что-то невнятное", in.RawText)
	fb, ok := in.Entities[NLUFallbackEntity].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.3, fb["best_confidence"])
	assert.Equal(t, "timer.set", fb["best_intent"])
}

func TestNLUNoMatchAnywhereFallsToGeneral(t *testing.T) {
	c := newTestNLU(t, nil)
	withMocks(c, &nlumock.Provider{}, &nlumock.Provider{})

	in, err := c.Recognize(context.Background(), nlu.Request{Text: "расскажи анекдот"})
	require.NoError(t, err)
	assert.Equal(t, "conversation.general", in.Name)
	assert.Equal(t, 1.0, in.Confidence)
	assert.Equal(t, "расскажи анекдот", in.Entities["text"])
	fb, ok := in.Entities[NLUFallbackEntity].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.0, fb["best_confidence"])
	assert.NotContains(t, fb, "best_intent")
}

func TestNLUProviderErrorSkipsToNext(t *testing.T) {
	c := newTestNLU(t, nil)
	m1 := &nlumock.Provider{RecognizeErr: errors.New("recognizer offline")}
	m2 := &nlumock.Provider{Intents: []types.Intent{{Name: "media.play", Confidence: 0.9}}}
	withMocks(c, m1, m2)

	in, err := c.Recognize(context.Background(), nlu.Request{Text: "включи музыку"})
	require.NoError(t, err)
	assert.Equal(t, "media.play", in.Name)
}

func TestNLUActiveProviderRunsFirst(t *testing.T) {
	c := newTestNLU(t, nil)
	m1 := &nlumock.Provider{Intents: []types.Intent{{Name: "timer.set", Confidence: 0.9}}}
	m2 := &nlumock.Provider{Intents: []types.Intent{{Name: "media.play", Confidence: 0.9}}}
	withMocks(c, m1, m2)
	c.active = 1

	in, err := c.Recognize(context.Background(), nlu.Request{Text: "включи"})
	require.NoError(t, err)
	assert.Equal(t, "media.play", in.Name)
	assert.Equal(t, 0, m1.RecognizeCallCount())
}

func TestNLUConsumeDonationsForwardsToSinks(t *testing.T) {
	c := newTestNLU(t, nil)
	m := &nlumock.Provider{}
	withMocks(c, m)

	d := &donation.Donation{HandlerDomain: "timer"}
	require.NoError(t, c.ConsumeDonations([]*donation.Donation{d}))
	require.Len(t, m.Donations, 1)
	assert.Equal(t, "timer", m.Donations[0].HandlerDomain)
}

func TestNLUSwitchProviderByAlias(t *testing.T) {
	cfg := &config.Config{}
	cfg.NLU.ProviderAliases = map[string][]string{
		"fuzzy": {"нечеткий", "фаззи"},
	}
	c := newTestNLU(t, cfg)

	name, ok := c.SwitchProvider("нечеткий")
	require.True(t, ok)
	assert.Equal(t, "fuzzy", name)
	assert.Equal(t, "fuzzy", c.ActiveProvider())

	_, ok = c.SwitchProvider("несуществующий распознаватель")
	assert.False(t, ok)
}
