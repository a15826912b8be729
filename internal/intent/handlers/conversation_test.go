package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/types"
)

func newHandlerConv(t *testing.T, lang string) *session.ConversationContext {
	t.Helper()
	mgr := session.NewManager(session.ManagerConfig{DefaultLanguage: lang})
	return mgr.Get(context.Background(), "sess-h")
}

func TestConversationDonation(t *testing.T) {
	h := NewConversation()
	don := h.Donation()
	assert.Equal(t, "conversation", don.HandlerDomain)
	assert.Len(t, don.MethodDonations, 4)
	assert.NotNil(t, don.Method("greeting"), "greeting method missing from manifest")
}

func TestConversation_Greeting(t *testing.T) {
	h := NewConversation()
	ctx := context.Background()

	t.Run("russian", func(t *testing.T) {
		conv := newHandlerConv(t, "ru")
		res, err := h.Execute(ctx, types.NewIntent("conversation.greeting", "привет", "sess-h", 0.95), conv)
		require.NoError(t, err)
		require.True(t, res.Success, "result = %+v", res)
		assert.Contains(t, res.Text, "Привет")
		assert.True(t, res.ShouldSpeak, "greeting should be spoken")
	})

	t.Run("english", func(t *testing.T) {
		conv := newHandlerConv(t, "en")
		res, err := h.Execute(ctx, types.NewIntent("conversation.greeting", "hello", "sess-h", 0.95), conv)
		require.NoError(t, err)
		assert.Contains(t, res.Text, "Hello")
	})
}

func TestConversation_MethodRouting(t *testing.T) {
	h := NewConversation()
	conv := newHandlerConv(t, "ru")

	res, err := h.ExecuteMethod(context.Background(), "farewell", types.NewIntent("conversation.farewell", "пока", "sess-h", 0.9), conv)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "До встречи")
}

func TestConversation_GeneralFallback(t *testing.T) {
	h := NewConversation()
	conv := newHandlerConv(t, "ru")

	in := types.NewIntent("conversation.general", "абракадабра", "sess-h", 0.2)
	res, err := h.Execute(context.Background(), in, conv)
	require.NoError(t, err)
	assert.True(t, res.Success, "fallback should still answer: %+v", res)
	assert.Equal(t, "абракадабра", res.Metadata["heard"], "Metadata = %v", res.Metadata)
}
