// Package handlers ships the built-in intent handlers: conversation
// basics, timers, and a demo media player. Each publishes a donation
// manifest describing its callable methods; the recognizer matches the
// donated phrases and the orchestrator routes to the donated method names.
package handlers

import (
	"context"
	_ "embed"

	"github.com/attalus-io/vestibule/internal/intent"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/donation"
	"github.com/attalus-io/vestibule/pkg/types"
)

//go:embed conversation_donation.json
var conversationDonationJSON []byte

// mustDonation parses an embedded manifest. Embedded manifests are
// build-time assets; failing to parse one is a programming error.
func mustDonation(raw []byte) *donation.Donation {
	d, err := donation.Parse(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// say picks the Russian or English variant by session language. Languages
// other than Russian get the English text.
func say(lang, ru, en string) string {
	if lang == "ru" {
		return ru
	}
	return en
}

// Conversation answers greetings, farewells, and thanks, and serves as the
// catch-all for utterances nothing else recognized. It registers the bare
// "conversation" domain so every conversation.* intent lands here.
type Conversation struct {
	don *donation.Donation
}

var (
	_ intent.Handler          = (*Conversation)(nil)
	_ intent.MethodRouter     = (*Conversation)(nil)
	_ intent.DonationProvider = (*Conversation)(nil)
)

// NewConversation builds the conversation handler.
func NewConversation() *Conversation {
	return &Conversation{don: mustDonation(conversationDonationJSON)}
}

func (h *Conversation) Name() string { return "conversation" }

func (h *Conversation) Patterns() []string { return []string{"conversation"} }

func (h *Conversation) CanHandle(types.Intent) bool { return true }

// Donation returns the handler's manifest.
func (h *Conversation) Donation() *donation.Donation { return h.don }

func (h *Conversation) Execute(ctx context.Context, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error) {
	return h.ExecuteMethod(ctx, in.Action, in, conv)
}

func (h *Conversation) ExecuteMethod(_ context.Context, method string, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error) {
	lang := conv.Language()
	switch method {
	case "greet", "greeting":
		return types.SuccessResult(say(lang, "Привет! Чем могу помочь?", "Hello! How can I help?"), in.Confidence), nil
	case "farewell":
		return types.SuccessResult(say(lang, "До встречи!", "Goodbye!"), in.Confidence), nil
	case "thank", "thanks":
		return types.SuccessResult(say(lang, "Пожалуйста!", "You're welcome!"), in.Confidence), nil
	default:
		return h.general(in, conv), nil
	}
}

// general is the low-confidence fallback. Without enrichment the best it
// can do is admit the miss and echo what it heard.
func (h *Conversation) general(in types.Intent, conv *session.ConversationContext) types.IntentResult {
	lang := conv.Language()
	text := say(lang, "Я не поняла. Попробуйте сказать иначе.", "I didn't catch that. Try rephrasing.")
	res := types.SuccessResult(text, in.Confidence)
	if in.RawText != "" {
		res.Metadata["heard"] = in.RawText
	}
	return res
}
