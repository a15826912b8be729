// Package session owns conversation state. Each session id maps to one
// [ConversationContext] holding bounded history, fire-and-forget action
// tracking, disambiguation memory, and per-user preferences. The [Manager]
// enforces idle timeouts and records lifecycle analytics through an
// [AnalyticsStore].
//
// All exported types are safe for concurrent use.
package session

import (
	"maps"
	"sync"
	"time"

	"github.com/attalus-io/vestibule/pkg/types"
)

// recentIntentLimit bounds the recent-intent list kept per session.
const recentIntentLimit = 5

// Turn is one entry in a conversation history.
type Turn struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the turn's text.
	Content string

	// Timestamp is when the turn was recorded.
	Timestamp time.Time
}

// ActiveAction describes a fire-and-forget task a handler started on behalf
// of this session (a running timer, active playback). Contextual commands
// like a bare "stop" are resolved against these.
type ActiveAction struct {
	// Domain is the intent domain that owns the action (e.g., "timer").
	Domain string

	// Handler names the handler that started the action.
	Handler string

	// StartedAt is when the action began.
	StartedAt time.Time
}

// Disambiguation is a pending contextual command waiting for the user to
// pick a target domain. It expires after the manager's disambiguation TTL.
type Disambiguation struct {
	// Command is the contextual action awaiting a target ("stop", "pause").
	Command string

	// Candidates are the domains the command could apply to, best first.
	Candidates []string

	// Prompt is the question that was read to the user.
	Prompt string

	// CreatedAt is when the disambiguation was stored.
	CreatedAt time.Time
}

// IntentStats summarizes intent processing within one session.
type IntentStats struct {
	Processed int
	Succeeded int
	Failed    int

	// ByDomain counts processed intents per domain.
	ByDomain map[string]int
}

// ConversationContext is the per-session mutable record: identity, language,
// bounded history, active actions, recent-intent metadata, and
// disambiguation memory. Contexts are created and owned by a [Manager];
// every mutation bumps the last-updated stamp that drives idle expiry.
type ConversationContext struct {
	sessionID string
	clientID  string
	roomID    string

	mu                sync.Mutex
	language          string
	history           []Turn
	maxHistoryTurns   int
	activeActions     map[string]ActiveAction
	currentDomain     string
	recentIntents     []string
	stats             IntentStats
	disambiguation    *Disambiguation
	disambiguationTTL time.Duration
	metadata          map[string]any
	userPreferences   map[string]any
	createdAt         time.Time
	lastUpdated       time.Time
}

func newConversationContext(sessionID, language string, maxHistoryTurns int, disambiguationTTL time.Duration) *ConversationContext {
	now := time.Now()
	return &ConversationContext{
		sessionID:         sessionID,
		roomID:            ExtractRoom(sessionID),
		language:          language,
		maxHistoryTurns:   maxHistoryTurns,
		activeActions:     make(map[string]ActiveAction),
		stats:             IntentStats{ByDomain: make(map[string]int)},
		disambiguationTTL: disambiguationTTL,
		metadata:          make(map[string]any),
		userPreferences:   make(map[string]any),
		createdAt:         now,
		lastUpdated:       now,
	}
}

// touch must be called with c.mu held.
func (c *ConversationContext) touch() {
	c.lastUpdated = time.Now()
}

// SessionID returns the immutable session identifier.
func (c *ConversationContext) SessionID() string { return c.sessionID }

// RoomID returns the room extracted from the session id, if any.
func (c *ConversationContext) RoomID() string { return c.roomID }

// ClientID returns the client identifier, if one was attached.
func (c *ConversationContext) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// SetClientID attaches the originating client's identifier.
func (c *ConversationContext) SetClientID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = id
	c.touch()
}

// Language returns the session language.
func (c *ConversationContext) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// SetLanguage changes the session language for subsequent turns.
func (c *ConversationContext) SetLanguage(lang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = lang
	c.touch()
}

// UpdateLanguagePreference persists the preferred language in the user
// preferences and switches the current session language to it.
func (c *ConversationContext) UpdateLanguagePreference(lang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userPreferences["language"] = lang
	c.language = lang
	c.touch()
}

// Preference returns a stored user preference.
func (c *ConversationContext) Preference(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.userPreferences[key]
	return v, ok
}

// AddUserTurn appends a user turn to the history, evicting the oldest turns
// when the bound is exceeded.
func (c *ConversationContext) AddUserTurn(text string) {
	c.addTurn("user", text)
}

// AddAssistantTurn appends an assistant turn to the history.
func (c *ConversationContext) AddAssistantTurn(text string) {
	c.addTurn("assistant", text)
}

func (c *ConversationContext) addTurn(role, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Turn{Role: role, Content: text, Timestamp: time.Now()})
	if excess := len(c.history) - c.maxHistoryTurns; excess > 0 {
		c.history = append(c.history[:0], c.history[excess:]...)
	}
	c.touch()
}

// History returns a copy of the conversation history, oldest first.
func (c *ConversationContext) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.history))
	copy(out, c.history)
	return out
}

// HistoryMessages returns the history converted to LLM messages.
func (c *ConversationContext) HistoryMessages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.history))
	for i, t := range c.history {
		out[i] = types.Message{Role: t.Role, Content: t.Content}
	}
	return out
}

// RegisterAction records a running fire-and-forget action under name,
// replacing any previous action with the same name.
func (c *ConversationContext) RegisterAction(name string, a ActiveAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now()
	}
	c.activeActions[name] = a
	c.touch()
}

// CompleteAction removes a finished or cancelled action. Removing an unknown
// name is a no-op.
func (c *ConversationContext) CompleteAction(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.activeActions[name]; !ok {
		return
	}
	delete(c.activeActions, name)
	c.touch()
}

// ActiveActions returns a copy of the running actions keyed by name.
func (c *ConversationContext) ActiveActions() map[string]ActiveAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.activeActions)
}

// ActionCount returns the number of running actions.
func (c *ConversationContext) ActionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.activeActions)
}

// CurrentDomain returns the domain of the most recent intent.
func (c *ConversationContext) CurrentDomain() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentDomain
}

// RecordIntent updates the recent-intent list, per-domain statistics, and
// the current domain after an intent has been executed.
func (c *ConversationContext) RecordIntent(in types.Intent, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentIntents = append(c.recentIntents, in.Name)
	if excess := len(c.recentIntents) - recentIntentLimit; excess > 0 {
		c.recentIntents = append(c.recentIntents[:0], c.recentIntents[excess:]...)
	}

	c.stats.Processed++
	if success {
		c.stats.Succeeded++
	} else {
		c.stats.Failed++
	}
	c.stats.ByDomain[in.Domain]++
	c.currentDomain = in.Domain
	c.touch()
}

// RecentIntents returns the names of the most recent intents, oldest first.
func (c *ConversationContext) RecentIntents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.recentIntents))
	copy(out, c.recentIntents)
	return out
}

// Stats returns a copy of the intent processing statistics.
func (c *ConversationContext) Stats() IntentStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.ByDomain = maps.Clone(c.stats.ByDomain)
	return s
}

// StoreDisambiguation remembers a pending contextual command for the next
// turn. The entry expires after the disambiguation TTL.
func (c *ConversationContext) StoreDisambiguation(d Disambiguation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	c.disambiguation = &d
	c.touch()
}

// PendingDisambiguation returns the stored disambiguation if one exists and
// has not expired. Expired entries are dropped on read.
func (c *ConversationContext) PendingDisambiguation() (Disambiguation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disambiguation == nil {
		return Disambiguation{}, false
	}
	if time.Since(c.disambiguation.CreatedAt) > c.disambiguationTTL {
		c.disambiguation = nil
		return Disambiguation{}, false
	}
	return *c.disambiguation, true
}

// ClearDisambiguation drops the stored disambiguation, if any.
func (c *ConversationContext) ClearDisambiguation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disambiguation == nil {
		return
	}
	c.disambiguation = nil
	c.touch()
}

// SetMetadata stores a free-form metadata value.
func (c *ConversationContext) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
	c.touch()
}

// Metadata returns a copy of the free-form metadata.
func (c *ConversationContext) Metadata() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.metadata)
}

// CreatedAt returns when the context was created.
func (c *ConversationContext) CreatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createdAt
}

// LastUpdated returns the time of the most recent mutation.
func (c *ConversationContext) LastUpdated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdated
}

// idleLongerThan reports whether the context has been idle longer than timeout.
func (c *ConversationContext) idleLongerThan(timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastUpdated) > timeout
}

// Snapshot is a point-in-time copy of a context for status endpoints.
type Snapshot struct {
	SessionID     string                  `json:"session_id"`
	ClientID      string                  `json:"client_id,omitempty"`
	RoomID        string                  `json:"room_id,omitempty"`
	Language      string                  `json:"language"`
	HistoryLength int                     `json:"history_length"`
	ActiveActions map[string]ActiveAction `json:"active_actions"`
	RecentIntents []string                `json:"recent_intents"`
	CurrentDomain string                  `json:"current_domain,omitempty"`
	Processed     int                     `json:"intents_processed"`
	Succeeded     int                     `json:"intents_succeeded"`
	Failed        int                     `json:"intents_failed"`
	CreatedAt     time.Time               `json:"created_at"`
	LastUpdated   time.Time               `json:"last_updated"`
}

// Snapshot returns a consistent copy of the context's observable state.
func (c *ConversationContext) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	recent := make([]string, len(c.recentIntents))
	copy(recent, c.recentIntents)
	return Snapshot{
		SessionID:     c.sessionID,
		ClientID:      c.clientID,
		RoomID:        c.roomID,
		Language:      c.language,
		HistoryLength: len(c.history),
		ActiveActions: maps.Clone(c.activeActions),
		RecentIntents: recent,
		CurrentDomain: c.currentDomain,
		Processed:     c.stats.Processed,
		Succeeded:     c.stats.Succeeded,
		Failed:        c.stats.Failed,
		CreatedAt:     c.createdAt,
		LastUpdated:   c.lastUpdated,
	}
}
