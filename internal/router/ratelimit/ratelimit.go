package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Scope names an independent rate-limit bucket. The two scopes are
// checked separately and denied with different errors.
type Scope string

const (
	// ScopeGeneral applies to every tier (calls per hour per identity).
	ScopeGeneral Scope = "general"
	// ScopeFrontierDaily applies only to the frontier tier (calls per day
	// per identity).
	ScopeFrontierDaily Scope = "frontier_daily"
)

const schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
	identity TEXT NOT NULL,
	scope TEXT NOT NULL,
	window_start REAL NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (identity, scope)
);
`

// Limiter enforces fixed-window request counts per (identity, scope).
// Each Allow call is one SQLite transaction, so two concurrent requests
// for the same key cannot both observe count = limit-1 and slip past the
// limit together.
type Limiter struct {
	db *sql.DB
}

// New creates the rate_limits table if needed and returns the limiter.
// The *sql.DB is shared with the cache store and stays owned by the
// caller.
func New(db *sql.DB) (*Limiter, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create rate_limits table: %w", err)
	}
	return &Limiter{db: db}, nil
}

// Allow performs an atomic check-and-increment against the current
// window for (identity, scope). A missing or expired window starts fresh
// with count = 1. Within an open window the count increments up to
// limit; once the limit is reached further calls are denied without
// advancing the count.
func (l *Limiter) Allow(ctx context.Context, identity string, scope Scope, limit int, window time.Duration) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("rate limit transaction failed: %w", err)
	}
	defer tx.Rollback()

	now := float64(time.Now().UnixNano()) / 1e9

	var windowStart float64
	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT window_start, count FROM rate_limits WHERE identity = ? AND scope = ?`,
		identity, string(scope),
	).Scan(&windowStart, &count)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rate_limits (identity, scope, window_start, count) VALUES (?, ?, ?, 1)`,
			identity, string(scope), now,
		); err != nil {
			return false, fmt.Errorf("rate limit insert failed: %w", err)
		}

	case err != nil:
		return false, fmt.Errorf("rate limit read failed: %w", err)

	case now-windowStart < window.Seconds():
		// Window still open.
		if count >= limit {
			return false, tx.Commit()
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE rate_limits SET count = count + 1 WHERE identity = ? AND scope = ?`,
			identity, string(scope),
		); err != nil {
			return false, fmt.Errorf("rate limit update failed: %w", err)
		}

	default:
		// Window expired: reset to 1, never carry the old count forward.
		if _, err := tx.ExecContext(ctx,
			`UPDATE rate_limits SET window_start = ?, count = 1 WHERE identity = ? AND scope = ?`,
			now, identity, string(scope),
		); err != nil {
			return false, fmt.Errorf("rate limit reset failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("rate limit commit failed: %w", err)
	}
	return true, nil
}

// Count returns the current stored count for (identity, scope), zero when
// no window exists. Used by status reporting and tests.
func (l *Limiter) Count(ctx context.Context, identity string, scope Scope) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT count FROM rate_limits WHERE identity = ? AND scope = ?`,
		identity, string(scope),
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rate limit read failed: %w", err)
	}
	return count, nil
}
