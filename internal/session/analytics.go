package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// IntentActivity is one intent execution attributed to a session.
type IntentActivity struct {
	// Name is the full intent name ("timer.set").
	Name string

	// Domain is the intent domain.
	Domain string

	// Success reports whether the handler succeeded.
	Success bool

	// Confidence is the recognition confidence.
	Confidence float64

	// OccurredAt is when the intent was executed.
	OccurredAt time.Time
}

// AnalyticsStore records session lifecycle events and intent activity.
// Implementations must be safe for concurrent use. Recording is best
// effort: the manager logs failures and continues.
type AnalyticsStore interface {
	RecordSessionStart(ctx context.Context, sessionID string, startedAt time.Time) error
	RecordSessionEnd(ctx context.Context, sessionID, reason string, endedAt time.Time) error
	RecordIntent(ctx context.Context, sessionID string, activity IntentActivity) error
}

// MultiAnalytics fans every event out to all given stores. Errors are
// joined; a failing store does not stop the others from recording.
func MultiAnalytics(stores ...AnalyticsStore) AnalyticsStore {
	return multiAnalytics(stores)
}

type multiAnalytics []AnalyticsStore

func (m multiAnalytics) RecordSessionStart(ctx context.Context, sessionID string, startedAt time.Time) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordSessionStart(ctx, sessionID, startedAt))
	}
	return errors.Join(errs...)
}

func (m multiAnalytics) RecordSessionEnd(ctx context.Context, sessionID, reason string, endedAt time.Time) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordSessionEnd(ctx, sessionID, reason, endedAt))
	}
	return errors.Join(errs...)
}

func (m multiAnalytics) RecordIntent(ctx context.Context, sessionID string, activity IntentActivity) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordIntent(ctx, sessionID, activity))
	}
	return errors.Join(errs...)
}

// SessionRecord is the accumulated analytics for one session.
type SessionRecord struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time
	EndReason string
	Intents   []IntentActivity
}

// MemoryAnalytics is the default in-process [AnalyticsStore]. It keeps
// every record for the lifetime of the process; suitable for single-user
// deployments and tests.
type MemoryAnalytics struct {
	mu       sync.Mutex
	sessions map[string]*SessionRecord
}

var _ AnalyticsStore = (*MemoryAnalytics)(nil)

// NewMemoryAnalytics creates an empty in-memory analytics store.
func NewMemoryAnalytics() *MemoryAnalytics {
	return &MemoryAnalytics{sessions: make(map[string]*SessionRecord)}
}

// RecordSessionStart implements [AnalyticsStore].
func (m *MemoryAnalytics) RecordSessionStart(_ context.Context, sessionID string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; ok {
		return nil
	}
	m.sessions[sessionID] = &SessionRecord{SessionID: sessionID, StartedAt: startedAt}
	return nil
}

// RecordSessionEnd implements [AnalyticsStore]. Ending an unknown session
// creates its record so the end is not lost.
func (m *MemoryAnalytics) RecordSessionEnd(_ context.Context, sessionID, reason string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		rec = &SessionRecord{SessionID: sessionID}
		m.sessions[sessionID] = rec
	}
	rec.EndedAt = endedAt
	rec.EndReason = reason
	return nil
}

// RecordIntent implements [AnalyticsStore].
func (m *MemoryAnalytics) RecordIntent(_ context.Context, sessionID string, activity IntentActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		rec = &SessionRecord{SessionID: sessionID}
		m.sessions[sessionID] = rec
	}
	rec.Intents = append(rec.Intents, activity)
	return nil
}

// Record returns a copy of the analytics for one session.
func (m *MemoryAnalytics) Record(sessionID string) (SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return SessionRecord{}, false
	}
	out := *rec
	out.Intents = make([]IntentActivity, len(rec.Intents))
	copy(out.Intents, rec.Intents)
	return out, true
}

// Records returns a copy of all session records keyed by session id.
func (m *MemoryAnalytics) Records() map[string]SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]SessionRecord, len(m.sessions))
	for id, stored := range m.sessions {
		rec := *stored
		rec.Intents = append([]IntentActivity(nil), rec.Intents...)
		out[id] = rec
	}
	return out
}
