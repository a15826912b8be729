package textmatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/pkg/textmatch"
)

func TestMatcher_PhoneticMatch(t *testing.T) {
	t.Parallel()

	m := textmatch.New()

	// "gervis" is a plausible recognition of the wake word "jarvis": both
	// encode to overlapping Double Metaphone codes.
	phrases := []string{"jarvis", "computer", "hey assistant"}

	phrase, conf, matched := m.Match("gervis", phrases)
	require.True(t, matched)
	assert.Equal(t, "jarvis", phrase)
	assert.GreaterOrEqual(t, conf, 0.7)
}

func TestMatcher_MultiWordPhrase(t *testing.T) {
	t.Parallel()

	m := textmatch.New()
	phrases := []string{"hey assistant", "jarvis"}

	phrase, conf, matched := m.Match("hey asistant", phrases)
	require.True(t, matched)
	assert.Equal(t, "hey assistant", phrase)
	assert.GreaterOrEqual(t, conf, 0.7)
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := textmatch.New()
	phrases := []string{"jarvis", "computer"}

	phrase, conf, matched := m.Match("bathroom", phrases)
	require.False(t, matched)
	assert.Equal(t, "bathroom", phrase, "input should come back unchanged")
	assert.Zero(t, conf)
}

func TestMatcher_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := textmatch.New()

	_, _, matched := m.Match("", []string{"jarvis"})
	assert.False(t, matched, "empty input matched")

	_, _, matched = m.Match("jarvis", nil)
	assert.False(t, matched, "empty phrase list matched")
}

func TestMatcher_ExactMatchWins(t *testing.T) {
	t.Parallel()

	m := textmatch.New()
	phrases := []string{"computer", "jarvis"}

	phrase, conf, matched := m.Match("computer", phrases)
	require.True(t, matched)
	assert.Equal(t, "computer", phrase)
	assert.GreaterOrEqual(t, conf, 0.99, "exact match confidence should be ~1.0")
}

func TestMatcher_MatchPrefix(t *testing.T) {
	t.Parallel()

	m := textmatch.New()
	phrases := []string{"jarvis"}

	phrase, remainder, conf, matched := m.MatchPrefix("jarvis turn on the light", phrases)
	require.True(t, matched)
	assert.Equal(t, "jarvis", phrase)
	assert.Equal(t, "turn on the light", remainder)
	assert.GreaterOrEqual(t, conf, 0.9)
}

func TestMatcher_MatchPrefix_BareWakeWord(t *testing.T) {
	t.Parallel()

	m := textmatch.New()

	phrase, remainder, _, matched := m.MatchPrefix("jarvis", []string{"jarvis"})
	require.True(t, matched)
	assert.Equal(t, "jarvis", phrase)
	assert.Empty(t, remainder)
}

func TestMatcher_MatchPrefix_NoWakeWord(t *testing.T) {
	t.Parallel()

	m := textmatch.New()

	_, _, _, matched := m.MatchPrefix("turn on the light", []string{"jarvis"})
	assert.False(t, matched, "matched an utterance without the wake word")
}
