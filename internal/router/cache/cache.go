package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/tiers"
)

// Store is a content-addressed response cache with TTL expiry. Keys are
// derived from the exact prompt text and tier, with no normalization:
// any retrieval context injected around the prompt elsewhere in the
// pipeline is invisible to the key.
type Store interface {
	// Get returns the cached response for (prompt, tier) if present and
	// unexpired. An expired entry counts as a miss.
	Get(ctx context.Context, prompt string, tier tiers.Tier) (string, bool, error)
	// Set upserts the response for (prompt, tier), overwriting any prior
	// entry for the same key.
	Set(ctx context.Context, prompt string, tier tiers.Tier, response string, ttl time.Duration) error
	Close() error
}

// Key derives the cache key for a (prompt, tier) pair.
func Key(prompt string, tier tiers.Tier) string {
	sum := sha256.Sum256([]byte(prompt + ":" + string(tier)))
	return hex.EncodeToString(sum[:])
}

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	cache_key TEXT PRIMARY KEY,
	response TEXT NOT NULL,
	tier TEXT NOT NULL,
	created_at REAL NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
`

// SQLiteStore persists cache entries in SQLite. Expiry is lazy: a stale
// entry is deleted on the next read of its key, never swept proactively.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the cache table if needed and returns the store.
// The *sql.DB is shared with the rate limiter and stays owned by the
// caller; Close is a no-op.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Store. An entry is valid iff now - created_at < ttl;
// a lookup at exactly ttl seconds after creation is a miss.
func (s *SQLiteStore) Get(ctx context.Context, prompt string, tier tiers.Tier) (string, bool, error) {
	key := Key(prompt, tier)

	var (
		response   string
		createdAt  float64
		ttlSeconds int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT response, created_at, ttl_seconds FROM cache WHERE cache_key = ?`, key,
	).Scan(&response, &createdAt, &ttlSeconds)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache read failed: %w", err)
	}

	age := float64(time.Now().UnixNano())/1e9 - createdAt
	if age < float64(ttlSeconds) {
		return response, true, nil
	}

	// Expired: purge lazily and report a miss.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE cache_key = ?`, key); err != nil {
		return "", false, fmt.Errorf("cache purge failed: %w", err)
	}
	return "", false, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, prompt string, tier tiers.Tier, response string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (cache_key, response, tier, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		Key(prompt, tier), response, string(tier),
		float64(time.Now().UnixNano())/1e9, int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Close implements Store. The underlying handle is shared and closed by
// its owner.
func (s *SQLiteStore) Close() error {
	return nil
}
