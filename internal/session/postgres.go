package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlAnalytics = `
CREATE TABLE IF NOT EXISTS assistant_sessions (
    session_id  TEXT         PRIMARY KEY,
    started_at  TIMESTAMPTZ  NOT NULL,
    ended_at    TIMESTAMPTZ,
    end_reason  TEXT         NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS intent_activity (
    id          BIGSERIAL         PRIMARY KEY,
    session_id  TEXT              NOT NULL,
    intent      TEXT              NOT NULL,
    domain      TEXT              NOT NULL,
    success     BOOLEAN           NOT NULL,
    confidence  DOUBLE PRECISION  NOT NULL,
    occurred_at TIMESTAMPTZ       NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_intent_activity_session
    ON intent_activity (session_id);

CREATE INDEX IF NOT EXISTS idx_intent_activity_occurred
    ON intent_activity (occurred_at);
`

// PostgresAnalytics is an [AnalyticsStore] backed by PostgreSQL. It holds a
// single [pgxpool.Pool]; all operations are safe for concurrent use.
type PostgresAnalytics struct {
	pool *pgxpool.Pool
}

var _ AnalyticsStore = (*PostgresAnalytics)(nil)

// NewPostgresAnalytics connects to the database at dsn, verifies the
// connection, and creates the analytics tables if they do not exist.
func NewPostgresAnalytics(ctx context.Context, dsn string) (*PostgresAnalytics, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("session analytics: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session analytics: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlAnalytics); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session analytics: migrate: %w", err)
	}
	return &PostgresAnalytics{pool: pool}, nil
}

// RecordSessionStart implements [AnalyticsStore].
func (p *PostgresAnalytics) RecordSessionStart(ctx context.Context, sessionID string, startedAt time.Time) error {
	const q = `
		INSERT INTO assistant_sessions (session_id, started_at)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO NOTHING`

	if _, err := p.pool.Exec(ctx, q, sessionID, startedAt); err != nil {
		return fmt.Errorf("session analytics: record start: %w", err)
	}
	return nil
}

// RecordSessionEnd implements [AnalyticsStore]. Ending an unknown session
// inserts its row so the end is not lost.
func (p *PostgresAnalytics) RecordSessionEnd(ctx context.Context, sessionID, reason string, endedAt time.Time) error {
	const q = `
		INSERT INTO assistant_sessions (session_id, started_at, ended_at, end_reason)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (session_id)
		DO UPDATE SET ended_at = EXCLUDED.ended_at, end_reason = EXCLUDED.end_reason`

	if _, err := p.pool.Exec(ctx, q, sessionID, endedAt, reason); err != nil {
		return fmt.Errorf("session analytics: record end: %w", err)
	}
	return nil
}

// RecordIntent implements [AnalyticsStore].
func (p *PostgresAnalytics) RecordIntent(ctx context.Context, sessionID string, activity IntentActivity) error {
	const q = `
		INSERT INTO intent_activity
		    (session_id, intent, domain, success, confidence, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := p.pool.Exec(ctx, q,
		sessionID,
		activity.Name,
		activity.Domain,
		activity.Success,
		activity.Confidence,
		activity.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("session analytics: record intent: %w", err)
	}
	return nil
}

// Close releases all connections held by the pool.
func (p *PostgresAnalytics) Close() {
	p.pool.Close()
}
