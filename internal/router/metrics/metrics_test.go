package metrics

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/database"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/models"
)

func newTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	rec, err := NewSQLiteRecorder(db)
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	t.Cleanup(func() { rec.Close() })
	return rec
}

func TestHashIdentity(t *testing.T) {
	h := HashIdentity("203.0.113.7")
	if len(h) != 16 {
		t.Errorf("hash length = %d, want 16", len(h))
	}
	if h != HashIdentity("203.0.113.7") {
		t.Error("hash not deterministic")
	}
	if h == HashIdentity("203.0.113.8") {
		t.Error("distinct identities share a hash")
	}
	if strings.Contains(h, "203.0.113.7") {
		t.Error("hash contains the raw identity")
	}
}

func TestRecordStoresHashNotIdentity(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	const identity = "198.51.100.23"
	err := rec.Record(ctx, Sample{
		Identity:     identity,
		Tier:         "frontier",
		Model:        "gpt-4o-mini",
		InputTokens:  120,
		OutputTokens: 480,
		LatencyMs:    900,
		CostUSD:      0.0051,
		Success:      true,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	records, err := rec.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	got := records[0]
	if got.IdentityHash != HashIdentity(identity) {
		t.Errorf("IdentityHash = %q, want %q", got.IdentityHash, HashIdentity(identity))
	}
	if strings.Contains(got.IdentityHash, identity) {
		t.Error("stored hash contains the raw identity")
	}

	want := models.RequestRecord{
		Tier:         "frontier",
		Model:        "gpt-4o-mini",
		InputTokens:  120,
		OutputTokens: 480,
		LatencyMs:    900,
		CostUSD:      0.0051,
		Cached:       false,
		Success:      true,
	}
	ignore := cmp.FilterPath(func(p cmp.Path) bool {
		switch p.String() {
		case "ID", "Timestamp", "IdentityHash":
			return true
		}
		return false
	}, cmp.Ignore())
	if diff := cmp.Diff(want, got, ignore); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

// backdate moves every stored row's timestamp into the previous day.
func backdate(t *testing.T, rec *SQLiteRecorder) {
	t.Helper()
	yesterday := float64(time.Now().Add(-25*time.Hour).UnixNano()) / 1e9
	if _, err := rec.db.Exec(`UPDATE requests SET timestamp = ?`, yesterday); err != nil {
		t.Fatalf("failed to backdate rows: %v", err)
	}
}

func TestDailySpendCountsOnlyToday(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	if err := rec.Record(ctx, Sample{Identity: "a", Tier: "frontier", Model: "gpt-4o-mini", CostUSD: 3.00, Success: true}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	backdate(t, rec)

	if err := rec.Record(ctx, Sample{Identity: "a", Tier: "frontier", Model: "gpt-4o-mini", CostUSD: 1.25, Success: true}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := rec.Record(ctx, Sample{Identity: "b", Tier: "budget", Model: "deepseek-chat", CostUSD: 0.50, Success: true}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	spend, err := rec.DailySpend(ctx)
	if err != nil {
		t.Fatalf("DailySpend failed: %v", err)
	}
	if spend != 1.75 {
		t.Errorf("DailySpend = %v, want 1.75 (yesterday's 3.00 excluded)", spend)
	}
}

func TestDailySpendEmptyLedger(t *testing.T) {
	rec := newTestRecorder(t)

	spend, err := rec.DailySpend(context.Background())
	if err != nil {
		t.Fatalf("DailySpend failed: %v", err)
	}
	if spend != 0 {
		t.Errorf("DailySpend on empty ledger = %v, want 0", spend)
	}
}

func TestStats(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	if err := rec.Record(ctx, Sample{Identity: "a", Tier: "sovereign", Model: "gpt-oss:20b", Success: true}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	backdate(t, rec)

	samples := []Sample{
		{Identity: "a", Tier: "sovereign", Model: "gpt-oss:20b", Success: true},
		{Identity: "a", Tier: "frontier", Model: "gpt-4o-mini", CostUSD: 0.12347, Success: true},
		{Identity: "b", Tier: "frontier", Model: "gpt-4o-mini", CostUSD: 0.2, Success: true},
	}
	for _, s := range samples {
		if err := rec.Record(ctx, s); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	stats, err := rec.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	want := models.UsageStats{
		TotalRequests: 4,
		TodayRequests: 3,
		TodaySpendUSD: 0.3235, // 0.32347 rounded to 4 places
		ByTier: map[string]int{
			"sovereign": 2,
			"frontier":  2,
		},
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	if err := rec.Record(ctx, Sample{Identity: "a", Tier: "sovereign", Model: "old", Success: true}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	backdate(t, rec)
	if err := rec.Record(ctx, Sample{Identity: "a", Tier: "sovereign", Model: "new", Success: true}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	records, err := rec.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 || records[0].Model != "new" {
		t.Errorf("Recent(1) = %+v, want the newest record", records)
	}
}
