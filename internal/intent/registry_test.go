package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/pkg/types"
)

// fakeHandler is a configurable test handler.
type fakeHandler struct {
	name       string
	patterns   []string
	contextual []string
	canHandle  func(types.Intent) bool
	execute    func(ctx context.Context, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error)

	calls []types.Intent
}

func (f *fakeHandler) Name() string       { return f.name }
func (f *fakeHandler) Patterns() []string { return f.patterns }

func (f *fakeHandler) CanHandle(in types.Intent) bool {
	if f.canHandle != nil {
		return f.canHandle(in)
	}
	return true
}

func (f *fakeHandler) Execute(ctx context.Context, in types.Intent, conv *session.ConversationContext) (types.IntentResult, error) {
	f.calls = append(f.calls, in)
	if f.execute != nil {
		return f.execute(ctx, in, conv)
	}
	return types.SuccessResult("ok", in.Confidence), nil
}

func (f *fakeHandler) ContextualCommands() []string { return f.contextual }

func TestRegistry_ExactMatch(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{name: "timer", patterns: []string{"timer.set"}}
	require.NoError(t, reg.Register(h))

	got, pattern, ok := reg.Resolve("timer.set")
	require.True(t, ok, "expected a match for timer.set")
	assert.Equal(t, "timer", got.Name())
	assert.Equal(t, "timer.set", pattern)

	_, _, ok = reg.Resolve("timer.unset")
	assert.False(t, ok, "timer.unset should not match an exact-only registration")
}

func TestRegistry_PrecedenceOrder(t *testing.T) {
	reg := NewRegistry()
	exact := &fakeHandler{name: "exact", patterns: []string{"media.playlist"}}
	scoped := &fakeHandler{name: "scoped", patterns: []string{"media.play*"}}
	domain := &fakeHandler{name: "domain", patterns: []string{"media"}}
	wide := &fakeHandler{name: "wide", patterns: []string{"media.*"}}
	for _, h := range []Handler{exact, scoped, domain, wide} {
		require.NoError(t, reg.Register(h), "Register(%s)", h.Name())
	}

	cases := []struct {
		intent string
		want   string
	}{
		{"media.playlist", "exact"},
		{"media.playback", "scoped"},
		{"media.volume", "domain"}, // bare domain beats the domain-wide wildcard
	}
	for _, tc := range cases {
		h, _, ok := reg.Resolve(tc.intent)
		require.True(t, ok, "Resolve(%q) found nothing", tc.intent)
		assert.Equal(t, tc.want, h.Name(), "Resolve(%q)", tc.intent)
	}

	_, _, ok := reg.Resolve("other.thing")
	assert.False(t, ok, "unrelated intent should not resolve")
}

func TestRegistry_DomainWideWildcardFallback(t *testing.T) {
	reg := NewRegistry()
	wide := &fakeHandler{name: "lights", patterns: []string{"lights.*"}}
	require.NoError(t, reg.Register(wide))

	h, pattern, ok := reg.Resolve("lights.on")
	require.True(t, ok)
	assert.Equal(t, "lights", h.Name())
	assert.Equal(t, "lights.*", pattern)
}

func TestRegistry_WildcardLongestFirst(t *testing.T) {
	reg := NewRegistry()
	long := &fakeHandler{name: "long", patterns: []string{"timer.se*"}}
	short := &fakeHandler{name: "short", patterns: []string{"timer.s*"}}
	require.NoError(t, reg.Register(short))
	require.NoError(t, reg.Register(long))

	h, _, ok := reg.Resolve("timer.set")
	require.True(t, ok)
	assert.Equal(t, "long", h.Name(), "the longer pattern's handler should win")

	h, _, ok = reg.Resolve("timer.snooze")
	require.True(t, ok)
	assert.Equal(t, "short", h.Name(), "the shorter pattern's handler should win")
}

func TestRegistry_QuestionMarkMatchesOneSegment(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{name: "media", patterns: []string{"media.?"}}
	require.NoError(t, reg.Register(h))

	_, _, ok := reg.Resolve("media.play")
	assert.True(t, ok, "media.? should match media.play")
	_, _, ok = reg.Resolve("media.playlist.next")
	assert.False(t, ok, "media.? should not match across segments")
}

func TestRegistry_DuplicatePatternRejected(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeHandler{name: "a", patterns: []string{"timer.set"}}))
	err := reg.Register(&fakeHandler{name: "b", patterns: []string{"timer.set"}})
	assert.Error(t, err, "duplicate pattern should be rejected")
}

func TestRegistry_ContextualDomains(t *testing.T) {
	reg := NewRegistry()
	media := &fakeHandler{name: "media", patterns: []string{"audio.play", "audio.stop"}, contextual: []string{"stop", "pause"}}
	timer := &fakeHandler{name: "timer", patterns: []string{"timer.set", "timer"}, contextual: []string{"stop", "cancel"}}
	for _, h := range []Handler{media, timer} {
		require.NoError(t, reg.Register(h))
	}

	assert.Equal(t, []string{"audio", "timer"}, reg.ContextualDomains("stop"))
	assert.Equal(t, []string{"audio"}, reg.ContextualDomains("pause"))
	assert.Empty(t, reg.ContextualDomains("rewind"))
}

func TestRegistry_HandlersAndPatterns(t *testing.T) {
	reg := NewRegistry()
	for _, h := range []Handler{
		&fakeHandler{name: "zeta", patterns: []string{"z.a"}},
		&fakeHandler{name: "alpha", patterns: []string{"a.a", "a.*"}},
	} {
		require.NoError(t, reg.Register(h))
	}

	hs := reg.Handlers()
	require.Len(t, hs, 2)
	assert.Equal(t, "alpha", hs[0].Name(), "Handlers() should be sorted by name")
	assert.Equal(t, "zeta", hs[1].Name(), "Handlers() should be sorted by name")

	assert.Equal(t, []string{"a.*", "a.a", "z.a"}, reg.Patterns())

	_, ok := reg.Handler("alpha")
	assert.True(t, ok, "Handler(alpha) not found")
	_, ok = reg.Handler("nope")
	assert.False(t, ok, "Handler(nope) should not exist")
}
