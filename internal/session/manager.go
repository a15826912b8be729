package session

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxHistoryTurns   = 10
	defaultSessionTimeout    = 30 * time.Minute
	defaultCleanupInterval   = 5 * time.Minute
	defaultDisambiguationTTL = 5 * time.Minute
	defaultLanguage          = "ru"
)

// ManagerConfig configures a [Manager]. Zero values fall back to defaults.
type ManagerConfig struct {
	// MaxHistoryTurns bounds each session's conversation history.
	MaxHistoryTurns int

	// SessionTimeout is how long a session may sit idle before the cleanup
	// pass removes it.
	SessionTimeout time.Duration

	// CleanupInterval is the period between cleanup passes.
	CleanupInterval time.Duration

	// DisambiguationTTL is how long a stored disambiguation stays valid.
	DisambiguationTTL time.Duration

	// DefaultLanguage seeds new sessions. Defaults to "ru".
	DefaultLanguage string

	// Analytics receives lifecycle and intent records. Optional.
	Analytics AnalyticsStore
}

// ManagerStats summarizes the manager's lifetime activity.
type ManagerStats struct {
	Active  int    `json:"active"`
	Created uint64 `json:"created"`
	Expired uint64 `json:"expired"`
	Cleared uint64 `json:"cleared"`
}

// Manager owns all conversation contexts, keyed by session id. Contexts are
// created lazily on first access and removed when explicitly cleared or
// after sitting idle longer than the session timeout.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*ConversationContext
	created  uint64
	expired  uint64
	cleared  uint64

	done     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a session manager. Call [Manager.Start] to begin the
// periodic cleanup pass.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = defaultMaxHistoryTurns
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = defaultSessionTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if cfg.DisambiguationTTL <= 0 {
		cfg.DisambiguationTTL = defaultDisambiguationTTL
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = defaultLanguage
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*ConversationContext),
		done:     make(chan struct{}),
	}
}

// Start launches the cleanup loop. The loop runs until [Manager.Stop] is
// called or ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go m.loop(ctx)
}

// Stop halts the cleanup loop. Safe to call multiple times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
}

// Get returns the context for sessionID, creating it on first access.
// Creation records a session-start analytics event.
func (m *Manager) Get(ctx context.Context, sessionID string) *ConversationContext {
	m.mu.RLock()
	c, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	if c, ok = m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return c
	}
	c = newConversationContext(sessionID, m.cfg.DefaultLanguage, m.cfg.MaxHistoryTurns, m.cfg.DisambiguationTTL)
	m.sessions[sessionID] = c
	m.created++
	m.mu.Unlock()

	m.record(func(s AnalyticsStore) error {
		return s.RecordSessionStart(ctx, sessionID, c.CreatedAt())
	}, "session_start", sessionID)

	slog.Debug("session created", "session_id", sessionID)
	return c
}

// Peek returns the context for sessionID without creating one.
func (m *Manager) Peek(sessionID string) (*ConversationContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[sessionID]
	return c, ok
}

// ClearSession removes a session immediately. Subsequent reads will not see
// the old context.
func (m *Manager) ClearSession(ctx context.Context, sessionID string) {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		m.cleared++
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.record(func(s AnalyticsStore) error {
		return s.RecordSessionEnd(ctx, sessionID, "cleared", time.Now())
	}, "session_end", sessionID)

	slog.Debug("session cleared", "session_id", sessionID)
}

// RecordIntentActivity forwards an executed intent to the analytics store.
// The session's own statistics are updated separately through
// [ConversationContext.RecordIntent].
func (m *Manager) RecordIntentActivity(ctx context.Context, sessionID string, activity IntentActivity) {
	if activity.OccurredAt.IsZero() {
		activity.OccurredAt = time.Now()
	}
	m.record(func(s AnalyticsStore) error {
		return s.RecordIntent(ctx, sessionID, activity)
	}, "intent_activity", sessionID)
}

// ActiveSessionIDs returns all live session ids, sorted.
func (m *Manager) ActiveSessionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stats returns lifetime counters alongside the live session count.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ManagerStats{
		Active:  len(m.sessions),
		Created: m.created,
		Expired: m.expired,
		Cleared: m.cleared,
	}
}

// Snapshots returns point-in-time copies of every live session, sorted by
// session id.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	contexts := make([]*ConversationContext, 0, len(m.sessions))
	for _, c := range m.sessions {
		contexts = append(contexts, c)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, len(contexts))
	for i, c := range contexts {
		out[i] = c.Snapshot()
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return out
}

// Shutdown stops the cleanup loop and records a session-end event for every
// remaining session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.Stop()

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.sessions = make(map[string]*ConversationContext)
	m.mu.Unlock()

	for _, id := range ids {
		m.record(func(s AnalyticsStore) error {
			return s.RecordSessionEnd(ctx, id, "shutdown", time.Now())
		}, "session_end", id)
	}
}

// CleanupNow removes every session idle longer than the session timeout and
// returns how many were removed. The periodic loop calls this; it is
// exported for status endpoints and tests.
func (m *Manager) CleanupNow(ctx context.Context) int {
	m.mu.Lock()
	var removed []string
	for id, c := range m.sessions {
		if c.idleLongerThan(m.cfg.SessionTimeout) {
			delete(m.sessions, id)
			removed = append(removed, id)
		}
	}
	m.expired += uint64(len(removed))
	m.mu.Unlock()

	for _, id := range removed {
		m.record(func(s AnalyticsStore) error {
			return s.RecordSessionEnd(ctx, id, "expired", time.Now())
		}, "session_end", id)
		slog.Debug("session expired", "session_id", id)
	}
	return len(removed)
}

func (m *Manager) loop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.CleanupNow(ctx)
		}
	}
}

// record runs an analytics call if a store is configured, logging failures.
func (m *Manager) record(fn func(AnalyticsStore) error, event, sessionID string) {
	if m.cfg.Analytics == nil {
		return
	}
	if err := fn(m.cfg.Analytics); err != nil {
		slog.Warn("session analytics record failed",
			"event", event,
			"session_id", sessionID,
			"error", err,
		)
	}
}
