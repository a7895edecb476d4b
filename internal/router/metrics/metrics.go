package metrics

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/models"
)

// Sample is the accounting data for one routed request. Identity is the
// raw caller identity; it is hashed before storage and never persisted.
type Sample struct {
	Identity     string
	Tier         string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMs    int
	CostUSD      float64
	Cached       bool
	Success      bool
}

// Recorder appends request records and answers the aggregate queries the
// budget check and status endpoints run. Records are append-only: nothing
// updates or deletes them.
type Recorder interface {
	Record(ctx context.Context, s Sample) error
	// DailySpend returns the summed cost_usd of records since local
	// midnight.
	DailySpend(ctx context.Context) (float64, error)
	Stats(ctx context.Context) (models.UsageStats, error)
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]models.RequestRecord, error)
	Close() error
}

// HashIdentity returns the one-way hash stored in place of a caller
// identity: sha256, hex, truncated to 16 characters.
func HashIdentity(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:16]
}

// dayStart returns local midnight of the current day.
func dayStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS requests (
	id TEXT PRIMARY KEY,
	timestamp REAL NOT NULL,
	ip_hash TEXT NOT NULL,
	tier TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	cached INTEGER NOT NULL,
	success INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_timestamp ON requests(timestamp);
`

// SQLiteRecorder persists request records in SQLite. It owns its *sql.DB.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder creates the requests table if needed.
func NewSQLiteRecorder(db *sql.DB) (*SQLiteRecorder, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create requests table: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

// Record implements Recorder.
func (r *SQLiteRecorder) Record(ctx context.Context, s Sample) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO requests
		 (id, timestamp, ip_hash, tier, model, input_tokens, output_tokens, latency_ms, cost_usd, cached, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		float64(time.Now().UnixNano())/1e9,
		HashIdentity(s.Identity),
		s.Tier, s.Model,
		s.InputTokens, s.OutputTokens, s.LatencyMs, s.CostUSD,
		s.Cached, s.Success,
	)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// DailySpend implements Recorder.
func (r *SQLiteRecorder) DailySpend(ctx context.Context) (float64, error) {
	start := float64(dayStart(time.Now()).UnixNano()) / 1e9

	var spend float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM requests WHERE timestamp > ?`, start,
	).Scan(&spend)
	if err != nil {
		return 0, fmt.Errorf("daily spend query failed: %w", err)
	}
	return spend, nil
}

// Stats implements Recorder.
func (r *SQLiteRecorder) Stats(ctx context.Context) (models.UsageStats, error) {
	var stats models.UsageStats
	start := float64(dayStart(time.Now()).UnixNano()) / 1e9

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests`,
	).Scan(&stats.TotalRequests); err != nil {
		return stats, fmt.Errorf("stats query failed: %w", err)
	}

	var spend float64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(cost_usd), 0) FROM requests WHERE timestamp > ?`, start,
	).Scan(&stats.TodayRequests, &spend); err != nil {
		return stats, fmt.Errorf("stats query failed: %w", err)
	}
	stats.TodaySpendUSD = round4(spend)

	rows, err := r.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM requests GROUP BY tier`)
	if err != nil {
		return stats, fmt.Errorf("stats query failed: %w", err)
	}
	defer rows.Close()

	stats.ByTier = make(map[string]int)
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return stats, fmt.Errorf("stats scan failed: %w", err)
		}
		stats.ByTier[tier] = n
	}
	return stats, rows.Err()
}

// Recent implements Recorder.
func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]models.RequestRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, timestamp, ip_hash, tier, model, input_tokens, output_tokens, latency_ms, cost_usd, cached, success
		 FROM requests ORDER BY timestamp DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent query failed: %w", err)
	}
	defer rows.Close()

	var records []models.RequestRecord
	for rows.Next() {
		var rec models.RequestRecord
		var ts float64
		var cached, success int
		if err := rows.Scan(
			&rec.ID, &ts, &rec.IdentityHash, &rec.Tier, &rec.Model,
			&rec.InputTokens, &rec.OutputTokens, &rec.LatencyMs, &rec.CostUSD,
			&cached, &success,
		); err != nil {
			return nil, fmt.Errorf("recent scan failed: %w", err)
		}
		rec.Timestamp = time.Unix(0, int64(ts*1e9))
		rec.Cached = cached == 1
		rec.Success = success == 1
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close implements Recorder.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
