package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/pkg/types"
)

func newTestContext(maxTurns int, ttl time.Duration) *ConversationContext {
	return newConversationContext("kitchen_session", "ru", maxTurns, ttl)
}

func TestContext_Defaults(t *testing.T) {
	c := newTestContext(10, time.Minute)

	assert.Equal(t, "kitchen_session", c.SessionID())
	assert.Equal(t, "kitchen", c.RoomID())
	assert.Equal(t, "ru", c.Language())
	assert.Empty(t, c.History(), "new context should have empty history")
	assert.Zero(t, c.ActionCount(), "new context should have no active actions")
}

func TestContext_HistoryBound(t *testing.T) {
	c := newTestContext(4, time.Minute)

	for i := 0; i < 6; i++ {
		c.AddUserTurn(fmt.Sprintf("question %d", i))
		c.AddAssistantTurn(fmt.Sprintf("answer %d", i))
	}

	hist := c.History()
	require.Len(t, hist, 4)
	assert.Equal(t, "question 4", hist[0].Content, "oldest surviving turn")
	assert.Equal(t, "answer 5", hist[3].Content, "newest turn")
	assert.Equal(t, "user", hist[0].Role, "roles should alternate")
	assert.Equal(t, "assistant", hist[1].Role, "roles should alternate")
}

func TestContext_HistoryMessages(t *testing.T) {
	c := newTestContext(10, time.Minute)
	c.AddUserTurn("привет")
	c.AddAssistantTurn("Привет!")

	msgs := c.HistoryMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "привет", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestContext_LastUpdatedBumps(t *testing.T) {
	c := newTestContext(10, time.Minute)
	before := c.LastUpdated()

	time.Sleep(5 * time.Millisecond)
	c.AddUserTurn("hello")
	assert.True(t, c.LastUpdated().After(before), "AddUserTurn should bump last updated")

	before = c.LastUpdated()
	time.Sleep(5 * time.Millisecond)
	c.RegisterAction("timer_1", ActiveAction{Domain: "timer", Handler: "timer"})
	assert.True(t, c.LastUpdated().After(before), "RegisterAction should bump last updated")

	before = c.LastUpdated()
	time.Sleep(5 * time.Millisecond)
	c.SetLanguage("en")
	assert.True(t, c.LastUpdated().After(before), "SetLanguage should bump last updated")
}

func TestContext_ActiveActions(t *testing.T) {
	c := newTestContext(10, time.Minute)

	c.RegisterAction("timer_1", ActiveAction{Domain: "timer", Handler: "timer"})
	c.RegisterAction("playback", ActiveAction{Domain: "audio", Handler: "media"})

	actions := c.ActiveActions()
	require.Len(t, actions, 2)
	assert.Equal(t, "timer", actions["timer_1"].Domain)
	assert.False(t, actions["timer_1"].StartedAt.IsZero(), "StartedAt should be stamped when zero")

	c.CompleteAction("timer_1")
	assert.Equal(t, 1, c.ActionCount(), "after completion")
	assert.NotContains(t, c.ActiveActions(), "timer_1", "completed action should be gone")

	// Completing an unknown action must not panic or bump anything.
	before := c.LastUpdated()
	c.CompleteAction("nonexistent")
	assert.Equal(t, before, c.LastUpdated(), "completing an unknown action should not bump last updated")
}

func TestContext_RecordIntent(t *testing.T) {
	c := newTestContext(10, time.Minute)

	for i := 0; i < 7; i++ {
		in := types.NewIntent(fmt.Sprintf("timer.set%d", i), "", "kitchen_session", 0.9)
		c.RecordIntent(in, i%2 == 0)
	}
	c.RecordIntent(types.NewIntent("audio.play", "", "kitchen_session", 0.8), true)

	recent := c.RecentIntents()
	require.Len(t, recent, 5)
	assert.Equal(t, "audio.play", recent[4], "newest intent")
	assert.Equal(t, "timer.set3", recent[0], "oldest surviving intent")

	stats := c.Stats()
	assert.Equal(t, 8, stats.Processed)
	assert.Equal(t, 5, stats.Succeeded)
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 7, stats.ByDomain["timer"], "by domain: %v", stats.ByDomain)
	assert.Equal(t, 1, stats.ByDomain["audio"], "by domain: %v", stats.ByDomain)
	assert.Equal(t, "audio", c.CurrentDomain())
}

func TestContext_DisambiguationExpiry(t *testing.T) {
	c := newTestContext(10, 30*time.Millisecond)

	c.StoreDisambiguation(Disambiguation{
		Command:    "stop",
		Candidates: []string{"timer", "audio"},
		Prompt:     "Что остановить: таймер или музыку?",
	})

	d, ok := c.PendingDisambiguation()
	require.True(t, ok, "disambiguation should be readable before expiry")
	assert.Equal(t, "stop", d.Command)
	assert.Len(t, d.Candidates, 2)
	assert.False(t, d.CreatedAt.IsZero(), "CreatedAt should be stamped when zero")

	time.Sleep(40 * time.Millisecond)
	_, ok = c.PendingDisambiguation()
	assert.False(t, ok, "disambiguation should expire after the TTL")
	// The expired entry is dropped, not resurrected.
	_, ok = c.PendingDisambiguation()
	assert.False(t, ok, "expired disambiguation should stay gone")
}

func TestContext_ClearDisambiguation(t *testing.T) {
	c := newTestContext(10, time.Minute)
	c.StoreDisambiguation(Disambiguation{Command: "pause", Candidates: []string{"audio"}})
	c.ClearDisambiguation()
	_, ok := c.PendingDisambiguation()
	assert.False(t, ok, "cleared disambiguation should be gone")
}

func TestContext_LanguagePreference(t *testing.T) {
	c := newTestContext(10, time.Minute)

	c.UpdateLanguagePreference("en")
	assert.Equal(t, "en", c.Language())
	pref, ok := c.Preference("language")
	require.True(t, ok, "language preference should be stored")
	assert.Equal(t, "en", pref)
}

func TestContext_Snapshot(t *testing.T) {
	c := newTestContext(10, time.Minute)
	c.SetClientID("client-7")
	c.AddUserTurn("set a timer")
	c.AddAssistantTurn("Timer set")
	c.RegisterAction("timer_1", ActiveAction{Domain: "timer", Handler: "timer"})
	c.RecordIntent(types.NewIntent("timer.set", "set a timer", "kitchen_session", 0.95), true)

	snap := c.Snapshot()
	assert.Equal(t, "kitchen_session", snap.SessionID)
	assert.Equal(t, "kitchen", snap.RoomID)
	assert.Equal(t, "client-7", snap.ClientID)
	assert.Equal(t, 2, snap.HistoryLength)
	assert.Len(t, snap.ActiveActions, 1)
	assert.Equal(t, 1, snap.Processed)
	assert.Equal(t, 1, snap.Succeeded)
	assert.Equal(t, "timer", snap.CurrentDomain)

	// The snapshot must be detached from the live context.
	snap.ActiveActions["injected"] = ActiveAction{}
	assert.Equal(t, 1, c.ActionCount(), "mutating a snapshot must not touch the context")
}
