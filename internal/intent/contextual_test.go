package intent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/types"
)

// newTestConv creates a detached conversation context for resolver tests.
func newTestConv(t *testing.T, lang string) *session.ConversationContext {
	t.Helper()
	mgr := session.NewManager(session.ManagerConfig{DefaultLanguage: lang})
	return mgr.Get(context.Background(), "sess-ctx")
}

// newTestResolver builds a resolver whose registry advertises "stop" for
// audio and timer, "pause" for audio only.
func newTestResolver(t *testing.T, priorities map[string]int, destructive []string) *Resolver {
	t.Helper()
	reg := NewRegistry()
	media := &fakeHandler{name: "media", patterns: []string{"audio.play", "audio.stop"}, contextual: []string{"stop", "pause"}}
	timer := &fakeHandler{name: "timer", patterns: []string{"timer"}, contextual: []string{"stop", "cancel"}}
	for _, h := range []Handler{media, timer} {
		require.NoError(t, reg.Register(h))
	}
	return NewResolver(reg, ResolverConfig{DomainPriorities: priorities, DestructiveCommands: destructive})
}

func contextualIntent(command string) types.Intent {
	return types.NewIntent(contextualDomain+"."+command, command, "sess-ctx", 0.9)
}

func TestResolver_NoActiveActions(t *testing.T) {
	r := newTestResolver(t, nil, nil)
	conv := newTestConv(t, "ru")

	res := r.Resolve(contextualIntent("stop"), conv)
	assert.Equal(t, types.ErrKindNoActiveActions, res.FailKind)
}

func TestResolver_NoCapableDomains(t *testing.T) {
	r := newTestResolver(t, nil, nil)
	conv := newTestConv(t, "ru")
	conv.RegisterAction("blink", session.ActiveAction{Domain: "lights"})

	res := r.Resolve(contextualIntent("stop"), conv)
	assert.Equal(t, types.ErrKindNoCapableHandlers, res.FailKind)
}

func TestResolver_SingleCandidate(t *testing.T) {
	r := newTestResolver(t, map[string]int{"audio": 80, "timer": 80}, []string{"stop"})
	conv := newTestConv(t, "ru")
	conv.RegisterAction("play_music", session.ActiveAction{Domain: "audio"})

	res := r.Resolve(contextualIntent("stop"), conv)
	require.Empty(t, res.FailKind, "expected direct resolution, got %+v", res)
	require.False(t, res.NeedsConfirmation, "expected direct resolution, got %+v", res)
	assert.Equal(t, "audio.stop", res.Intent.Name)
	assert.Equal(t, methodSingle, res.Method)

	info, ok := res.Intent.Entities["_contextual_resolution"].(map[string]any)
	require.True(t, ok, "rewritten intent missing _contextual_resolution entity")
	assert.Equal(t, "audio", info["target_domain"], "resolution entity = %v", info)
	assert.Equal(t, methodSingle, info["method"], "resolution entity = %v", info)
}

// A command only some domains advertise is filtered by vocabulary before
// scoring: "pause" with both music and a timer running goes straight to
// audio because timers never advertise pause.
func TestResolver_CommandVocabularyFilters(t *testing.T) {
	r := newTestResolver(t, map[string]int{"audio": 80, "timer": 80}, []string{"stop"})
	conv := newTestConv(t, "ru")
	conv.RegisterAction("play_music", session.ActiveAction{Domain: "audio"})
	conv.RegisterAction("set_timer", session.ActiveAction{Domain: "timer"})

	res := r.Resolve(contextualIntent("pause"), conv)
	require.False(t, res.NeedsConfirmation, "expected direct resolution, got %+v", res)
	require.Empty(t, res.FailKind, "expected direct resolution, got %+v", res)
	assert.Equal(t, "audio.pause", res.Intent.Name)
}

func TestResolver_DestructiveTieAsksConfirmation(t *testing.T) {
	r := newTestResolver(t, map[string]int{"audio": 80, "timer": 80}, []string{"stop"})
	conv := newTestConv(t, "ru")
	conv.RegisterAction("play_music", session.ActiveAction{Domain: "audio"})
	conv.RegisterAction("set_timer", session.ActiveAction{Domain: "timer"})

	res := r.Resolve(contextualIntent("stop"), conv)
	require.True(t, res.NeedsConfirmation, "expected confirmation, got %+v", res)
	assert.Equal(t, []string{"audio", "timer"}, res.Candidates)
	for _, domain := range res.Candidates {
		assert.Contains(t, res.Prompt, domain)
	}
}

func TestResolver_ClearWinnerAutoResolvesDestructive(t *testing.T) {
	r := newTestResolver(t, map[string]int{"audio": 90, "timer": 30}, []string{"stop"})
	conv := newTestConv(t, "ru")
	conv.RegisterAction("play_music", session.ActiveAction{Domain: "audio"})
	conv.RegisterAction("set_timer", session.ActiveAction{Domain: "timer"})

	res := r.Resolve(contextualIntent("stop"), conv)
	require.False(t, res.NeedsConfirmation, "clear winner should not ask for confirmation: %+v", res)
	assert.Equal(t, "audio", res.Domain)
	assert.Equal(t, methodScore, res.Method)
}

func TestResolver_RecencyBreaksTie(t *testing.T) {
	r := newTestResolver(t, map[string]int{"audio": 50, "timer": 50}, []string{"stop"})
	conv := newTestConv(t, "ru")
	conv.RegisterAction("play_music", session.ActiveAction{
		Domain:    "audio",
		StartedAt: time.Now().Add(-40 * time.Minute),
	})
	conv.RegisterAction("set_timer", session.ActiveAction{Domain: "timer"})

	res := r.Resolve(contextualIntent("stop"), conv)
	require.False(t, res.NeedsConfirmation, "recency gap should produce a clear winner: %+v", res)
	assert.Equal(t, "timer", res.Domain, "timer started just now")
	assert.GreaterOrEqual(t, res.Scores["timer"]-res.Scores["audio"], float64(tieWindow),
		"score gap should exceed the tie window: %v", res.Scores)
}

func TestResolver_MultiplicityCappedAtTwenty(t *testing.T) {
	reg := NewRegistry()
	a := &fakeHandler{name: "a", patterns: []string{"alarms"}, contextual: []string{"stop"}}
	b := &fakeHandler{name: "b", patterns: []string{"briefing"}, contextual: []string{"stop"}}
	for _, h := range []Handler{a, b} {
		require.NoError(t, reg.Register(h))
	}
	r := NewResolver(reg, ResolverConfig{DomainPriorities: map[string]int{"alarms": 50, "briefing": 50}})

	conv := newTestConv(t, "ru")
	started := time.Now()
	for i := 0; i < 6; i++ {
		conv.RegisterAction(string(rune('a'+i)), session.ActiveAction{Domain: "alarms", StartedAt: started})
	}
	conv.RegisterAction("solo", session.ActiveAction{Domain: "briefing", StartedAt: started})

	res := r.Resolve(contextualIntent("stop"), conv)

	// Six actions would be 30 points uncapped; the cap keeps the gap at
	// 20 - 5 = 15.
	gap := res.Scores["alarms"] - res.Scores["briefing"]
	assert.InDelta(t, 15, gap, 0.1, "score gap with multiplicity capped")
}

func TestResolver_NonDestructiveTwoWayTieResolves(t *testing.T) {
	reg := NewRegistry()
	a := &fakeHandler{name: "a", patterns: []string{"alarms"}, contextual: []string{"pause"}}
	b := &fakeHandler{name: "b", patterns: []string{"briefing"}, contextual: []string{"pause"}}
	for _, h := range []Handler{a, b} {
		require.NoError(t, reg.Register(h))
	}
	r := NewResolver(reg, ResolverConfig{DomainPriorities: map[string]int{"alarms": 50, "briefing": 50}})

	conv := newTestConv(t, "ru")
	now := time.Now()
	conv.RegisterAction("x", session.ActiveAction{Domain: "alarms", StartedAt: now})
	conv.RegisterAction("y", session.ActiveAction{Domain: "briefing", StartedAt: now})

	res := r.Resolve(contextualIntent("pause"), conv)
	require.False(t, res.NeedsConfirmation,
		"two-way tie on a non-destructive command should auto-resolve: %+v", res)
	// Equal scores order by domain name.
	assert.Equal(t, "alarms", res.Domain)
}

func TestResolver_ThreeWayTieAsksConfirmation(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"alpha", "beta", "gamma"} {
		h := &fakeHandler{name: name, patterns: []string{name}, contextual: []string{"pause"}}
		require.NoError(t, reg.Register(h))
	}
	r := NewResolver(reg, ResolverConfig{})

	conv := newTestConv(t, "en")
	now := time.Now()
	for _, domain := range []string{"alpha", "beta", "gamma"} {
		conv.RegisterAction(domain+"-act", session.ActiveAction{Domain: domain, StartedAt: now})
	}

	res := r.Resolve(contextualIntent("pause"), conv)
	require.True(t, res.NeedsConfirmation,
		"three tied candidates should ask even when non-destructive: %+v", res)
	assert.Len(t, res.Candidates, 3, "want all three candidates")
}

func TestResolver_PriorityClampedToHundred(t *testing.T) {
	reg := NewRegistry()
	a := &fakeHandler{name: "a", patterns: []string{"alarms"}, contextual: []string{"stop"}}
	b := &fakeHandler{name: "b", patterns: []string{"briefing"}, contextual: []string{"stop"}}
	for _, h := range []Handler{a, b} {
		require.NoError(t, reg.Register(h))
	}
	r := NewResolver(reg, ResolverConfig{DomainPriorities: map[string]int{"alarms": 250, "briefing": 100}})

	conv := newTestConv(t, "ru")
	now := time.Now()
	conv.RegisterAction("x", session.ActiveAction{Domain: "alarms", StartedAt: now})
	conv.RegisterAction("y", session.ActiveAction{Domain: "briefing", StartedAt: now})

	res := r.Resolve(contextualIntent("stop"), conv)
	assert.Equal(t, res.Scores["briefing"], res.Scores["alarms"],
		"clamped priority should equal 100: %v", res.Scores)
}

func TestResolver_ConfidenceBounded(t *testing.T) {
	r := newTestResolver(t, map[string]int{"audio": 100}, nil)
	conv := newTestConv(t, "ru")
	for i := 0; i < 5; i++ {
		conv.RegisterAction(string(rune('a'+i)), session.ActiveAction{Domain: "audio"})
	}

	res := r.Resolve(contextualIntent("stop"), conv)
	assert.Greater(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
	// 100 priority + 50 recency + 20 multiplicity is a perfect score.
	assert.Equal(t, 1.0, res.Confidence, "maxed score should yield full confidence")
}

func TestResolver_Answer(t *testing.T) {
	r := newTestResolver(t, nil, nil)
	pending := session.Disambiguation{
		Command:    "stop",
		Candidates: []string{"audio", "timer"},
	}

	t.Run("picks named candidate", func(t *testing.T) {
		in := types.NewIntent("conversation.general", "останови audio", "sess-ctx", 0.4)
		out, ok := r.Answer(in, pending)
		require.True(t, ok, "expected the answer to match")
		assert.Equal(t, "audio.stop", out.Name)
		info, _ := out.Entities["_contextual_resolution"].(map[string]any)
		require.NotNil(t, info, "resolution entity missing")
		assert.Equal(t, methodCache, info["method"], "resolution entity = %v", info)
	})

	t.Run("ambiguous answer stays pending", func(t *testing.T) {
		in := types.NewIntent("conversation.general", "audio или timer", "sess-ctx", 0.4)
		_, ok := r.Answer(in, pending)
		assert.False(t, ok, "naming both candidates should not resolve")
	})

	t.Run("unrelated answer stays pending", func(t *testing.T) {
		in := types.NewIntent("conversation.general", "что ты умеешь", "sess-ctx", 0.4)
		_, ok := r.Answer(in, pending)
		assert.False(t, ok, "an unrelated utterance should not resolve")
	})
}
