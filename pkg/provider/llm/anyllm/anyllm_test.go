package anyllm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/pkg/provider/llm"
	"github.com/attalus-io/vestibule/pkg/types"
)

// TestNew_Validation checks constructor argument validation.
func TestNew_Validation(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	assert.Error(t, err, "empty provider name accepted")

	_, err = New("openai", "")
	assert.Error(t, err, "empty model accepted")

	_, err = New("not-a-provider", "some-model")
	assert.Error(t, err, "unknown provider name accepted")
}

// TestConvertMessage checks role and content mapping.
func TestConvertMessage(t *testing.T) {
	m := types.Message{Role: "user", Content: "turn on the kitchen light", Name: "alice"}
	got := convertMessage(m)
	assert.Equal(t, "user", got.Role)
	assert.Equal(t, "turn on the kitchen light", got.ContentString())
	assert.Equal(t, "alice", got.Name)
}

// TestBuildParams_SystemPrompt checks that the system prompt leads the
// message list.
func TestBuildParams_SystemPrompt(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a home assistant.",
		Messages: []types.Message{
			{Role: "user", Content: "hello"},
		},
	})

	require.Len(t, params.Messages, 2)
	assert.Equal(t, "system", params.Messages[0].Role)
	assert.Equal(t, "user", params.Messages[1].Role)
	assert.Equal(t, "gpt-4o-mini", params.Model)
}

// TestBuildParams_OptionalFields checks that zero values stay unset.
func TestBuildParams_OptionalFields(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}

	params := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	assert.Nil(t, params.Temperature, "zero value should stay unset")
	assert.Nil(t, params.MaxTokens, "zero value should stay unset")

	params = p.buildParams(llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	require.NotNil(t, params.Temperature)
	assert.Equal(t, 0.7, *params.Temperature)
	require.NotNil(t, params.MaxTokens)
	assert.Equal(t, 256, *params.MaxTokens)
}

// TestCountTokens checks the character-based approximation.
func TestCountTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	n, err := p.CountTokens([]types.Message{
		{Role: "user", Content: "12345678"}, // 2 tokens + 4 overhead
	})
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

// TestModelCapabilities checks the known-model table.
func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model      string
		wantWindow int
	}{
		{"gpt-4o-mini", 128_000},
		{"claude-3-5-haiku-latest", 200_000},
		{"gemini-1.5-pro", 2_097_152},
		{"llama3.2", 32_768},
		{"totally-unknown-model", 128_000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.wantWindow, modelCapabilities(tt.model).ContextWindow, tt.model)
	}
}

// TestName includes the backend for log attribution.
func TestName(t *testing.T) {
	p := &Provider{backendName: "ollama", model: "llama3.2"}
	assert.Equal(t, "anyllm/ollama", p.Name())
}
