package components

import (
	"context"
	"fmt"
	"strings"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/resilience"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/provider/llm"
	"github.com/attalus-io/vestibule/pkg/types"
)

// enrichmentPrompts frame the reply-polishing completion per language.
var enrichmentPrompts = map[string]string{
	"ru": "Ты голосовой ассистент. Ответь на реплику пользователя кратко и по-дружески, одним-двумя предложениями, без списков и разметки.",
	"en": "You are a voice assistant. Reply to the user briefly and warmly, in one or two sentences, with no lists or markup.",
}

// LLM is the optional reply enrichment component. When small-talk lands in
// conversation.general with nothing better to say, the workflow asks the
// model for a conversational reply instead of the canned fallback. A
// circuit breaker keeps a dead endpoint from stalling every utterance.
type LLM struct {
	provider     llm.Provider
	breaker      *resilience.CircuitBreaker
	temperature  float64
	maxTokens    int
	systemPrompt string
}

var _ component.Component = (*LLM)(nil)

// NewLLM returns an uninitialized enrichment component.
func NewLLM() *LLM { return &LLM{} }

func (c *LLM) Name() string { return config.ComponentLLM }

func (c *LLM) Dependencies() []string { return nil }

func (c *LLM) Init(_ context.Context, deps *component.Deps) error {
	if deps.Config == nil {
		return fmt.Errorf("llm: configuration required")
	}
	cfg := deps.Config.LLM
	if cfg.Provider.Name == "" || !cfg.Provider.IsEnabled() {
		return fmt.Errorf("llm: no provider configured")
	}
	p, err := buildLLMProvider(deps.Providers, cfg.Provider)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	c.provider = p
	c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm"})
	c.temperature = cfg.Temperature
	c.maxTokens = cfg.MaxTokens
	c.systemPrompt = cfg.SystemPrompt
	return nil
}

func (c *LLM) Shutdown(context.Context) error { return nil }

// Enrich completes a conversational reply to text, framed by the session's
// recent history. Returns the breaker's error unchanged when the endpoint
// is failing so callers can fall back to the canned reply.
func (c *LLM) Enrich(ctx context.Context, conv *session.ConversationContext, text, lang string) (string, error) {
	prompt := c.systemPrompt
	if prompt == "" {
		prompt = enrichmentPrompts[lang]
		if prompt == "" {
			prompt = enrichmentPrompts["ru"]
		}
	}

	messages := c.frame(conv, text)
	req := llm.CompletionRequest{
		Messages:     messages,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		SystemPrompt: prompt,
	}

	var resp *llm.CompletionResponse
	err := c.breaker.Execute(func() error {
		r, err := c.provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llm: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// frame assembles the completion messages: as much recent history as the
// model's context window allows, then the current utterance.
func (c *LLM) frame(conv *session.ConversationContext, text string) []types.Message {
	var history []types.Message
	if conv != nil {
		history = conv.HistoryMessages()
	}
	current := types.Message{Role: "user", Content: text}

	window := c.provider.Capabilities().ContextWindow
	if window > 0 {
		for len(history) > 0 {
			n, err := c.provider.CountTokens(append(history, current))
			if err != nil || n <= window-c.maxTokens {
				break
			}
			history = history[1:]
		}
	}
	return append(history, current)
}

// Breaker exposes the circuit breaker state for status reporting.
func (c *LLM) Breaker() resilience.State { return c.breaker.State() }
