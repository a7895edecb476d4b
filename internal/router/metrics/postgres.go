package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS requests (
	id TEXT PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	ip_hash TEXT NOT NULL,
	tier TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	cost_usd DOUBLE PRECISION NOT NULL,
	cached BOOLEAN NOT NULL,
	success BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_timestamp ON requests (timestamp);
`

// PostgresRecorder persists request records in Postgres, for deployments
// that keep metrics off the local disk. Same row shape as the SQLite
// recorder.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder creates the requests table if needed.
func NewPostgresRecorder(db *sql.DB) (*PostgresRecorder, error) {
	if _, err := db.Exec(postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to create requests table: %w", err)
	}
	return &PostgresRecorder{db: db}, nil
}

// Record implements Recorder.
func (r *PostgresRecorder) Record(ctx context.Context, s Sample) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO requests
		 (id, timestamp, ip_hash, tier, model, input_tokens, output_tokens, latency_ms, cost_usd, cached, success)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.NewString(),
		time.Now(),
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
func (r *PostgresRecorder) DailySpend(ctx context.Context) (float64, error) {
	var spend float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM requests WHERE timestamp > $1`,
		dayStart(time.Now()),
	).Scan(&spend)
	if err != nil {
		return 0, fmt.Errorf("daily spend query failed: %w", err)
	}
	return spend, nil
}

// Stats implements Recorder.
func (r *PostgresRecorder) Stats(ctx context.Context) (models.UsageStats, error) {
	var stats models.UsageStats

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests`,
	).Scan(&stats.TotalRequests); err != nil {
		return stats, fmt.Errorf("stats query failed: %w", err)
	}

	var spend float64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(cost_usd), 0) FROM requests WHERE timestamp > $1`,
		dayStart(time.Now()),
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
func (r *PostgresRecorder) Recent(ctx context.Context, limit int) ([]models.RequestRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, timestamp, ip_hash, tier, model, input_tokens, output_tokens, latency_ms, cost_usd, cached, success
		 FROM requests ORDER BY timestamp DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent query failed: %w", err)
	}
	defer rows.Close()

	var records []models.RequestRecord
	for rows.Next() {
		var rec models.RequestRecord
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.IdentityHash, &rec.Tier, &rec.Model,
			&rec.InputTokens, &rec.OutputTokens, &rec.LatencyMs, &rec.CostUSD,
			&rec.Cached, &rec.Success,
		); err != nil {
			return nil, fmt.Errorf("recent scan failed: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close implements Recorder.
func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}
