package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos/metrics"
	"github.com/mabquiz/mabquiz-backend/internal/data/repos/testutil"
	"github.com/mabquiz/mabquiz-backend/internal/domain"
)

func newMetrics(questionID string, successRate float64, computed time.Time) *domain.QuestionMetrics {
	return &domain.QuestionMetrics{
		ID:                  uuid.New(),
		QuestionID:          questionID,
		GlobalSuccessRate:   successRate,
		TotalAttempts:       20,
		AverageResponseTime: 18,
		ReachRate:           0.7,
		DifficultyScore:     0.4,
		ComputedDifficulty:  domain.DifficultyIntermediate,
		ConfidenceLower:     successRate - 0.1,
		ConfidenceUpper:     successRate + 0.1,
		LastComputed:        computed,
		IsActive:            true,
		CreatedAt:           computed,
		UpdatedAt:           computed,
	}
}

func TestQuestionMetricsUpsertSupersedes(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := metrics.NewQuestionMetricsRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	now := time.Now().UTC()
	if err := repo.Upsert(ctx, tx, newMetrics("q1", 0.5, now.Add(-time.Hour))); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	fresh := newMetrics("q1", 0.8, now)
	fresh.ComputedDifficulty = domain.DifficultyBeginner
	if err := repo.Upsert(ctx, tx, fresh); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.GetActive(ctx, tx, "q1")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if got == nil {
		t.Fatal("expected active metrics for q1")
	}
	if got.GlobalSuccessRate != 0.8 || got.ComputedDifficulty != domain.DifficultyBeginner {
		t.Fatalf("upsert did not supersede: %+v", got)
	}
}

func TestQuestionMetricsGetActiveMissing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := metrics.NewQuestionMetricsRepo(tx, testutil.Logger(t))

	got, err := repo.GetActive(context.Background(), tx, "never-computed")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if got != nil {
		t.Fatalf("missing metrics should be (nil, nil), got %+v", got)
	}
}

func TestQuestionMetricsListActiveByIDs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := metrics.NewQuestionMetricsRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	now := time.Now().UTC()
	if err := repo.Upsert(ctx, tx, newMetrics("qa", 0.5, now)); err != nil {
		t.Fatalf("upsert qa: %v", err)
	}
	if err := repo.Upsert(ctx, tx, newMetrics("qb", 0.6, now.Add(-72*time.Hour))); err != nil {
		t.Fatalf("upsert qb: %v", err)
	}

	rows, err := repo.ListActiveByIDs(ctx, tx, []string{"qa", "qb", "qc"}, nil)
	if err != nil {
		t.Fatalf("ListActiveByIDs: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("found %d rows, want 2", len(rows))
	}

	cutoff := now.Add(-24 * time.Hour)
	fresh, err := repo.ListActiveByIDs(ctx, tx, []string{"qa", "qb"}, &cutoff)
	if err != nil {
		t.Fatalf("ListActiveByIDs with cutoff: %v", err)
	}
	if len(fresh) != 1 || fresh[0].QuestionID != "qa" {
		t.Fatalf("cutoff filter = %+v, want just qa", fresh)
	}

	none, err := repo.ListActiveByIDs(ctx, tx, nil, nil)
	if err != nil {
		t.Fatalf("ListActiveByIDs(nil): %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("empty id set should return nothing, got %d", len(none))
	}
}

func TestQuestionMetricsDeactivateStale(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := metrics.NewQuestionMetricsRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	now := time.Now().UTC()
	if err := repo.Upsert(ctx, tx, newMetrics("q-stale", 0.5, now.AddDate(0, 0, -120))); err != nil {
		t.Fatalf("upsert stale: %v", err)
	}
	if err := repo.Upsert(ctx, tx, newMetrics("q-fresh", 0.6, now)); err != nil {
		t.Fatalf("upsert fresh: %v", err)
	}

	cutoff := now.AddDate(0, 0, -90)
	deactivated, err := repo.DeactivateStale(ctx, tx, cutoff)
	if err != nil {
		t.Fatalf("DeactivateStale: %v", err)
	}
	if deactivated != 1 {
		t.Fatalf("deactivated = %d, want 1", deactivated)
	}

	stale, err := repo.GetActive(ctx, tx, "q-stale")
	if err != nil {
		t.Fatalf("GetActive stale: %v", err)
	}
	if stale != nil {
		t.Fatalf("stale metrics still active: %+v", stale)
	}
	fresh, err := repo.GetActive(ctx, tx, "q-fresh")
	if err != nil {
		t.Fatalf("GetActive fresh: %v", err)
	}
	if fresh == nil {
		t.Fatal("fresh metrics were deactivated")
	}

	// Replaying the cleanup touches nothing.
	again, err := repo.DeactivateStale(ctx, tx, cutoff)
	if err != nil {
		t.Fatalf("DeactivateStale replay: %v", err)
	}
	if again != 0 {
		t.Fatalf("replay deactivated = %d, want 0", again)
	}
}

func TestQuestionMetricsDifficultyDistribution(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := metrics.NewQuestionMetricsRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	now := time.Now().UTC()
	easy := newMetrics("qe", 0.9, now)
	easy.ComputedDifficulty = domain.DifficultyBeginner
	hard := newMetrics("qh", 0.2, now)
	hard.ComputedDifficulty = domain.DifficultyAdvanced
	for _, m := range []*domain.QuestionMetrics{easy, hard} {
		if err := repo.Upsert(ctx, tx, m); err != nil {
			t.Fatalf("upsert %s: %v", m.QuestionID, err)
		}
	}

	buckets, err := repo.DifficultyDistribution(ctx, tx)
	if err != nil {
		t.Fatalf("DifficultyDistribution: %v", err)
	}
	byCat := map[string]int64{}
	for _, b := range buckets {
		byCat[b.ComputedDifficulty] = b.Count
	}
	if byCat[domain.DifficultyBeginner] < 1 || byCat[domain.DifficultyAdvanced] < 1 {
		t.Fatalf("distribution missing categories: %+v", buckets)
	}
}
