package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos/events"
	"github.com/mabquiz/mabquiz-backend/internal/data/repos/testutil"
)

func TestAggregateByQuestion(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := events.NewResponseEventRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	// 15 events, 9 correct, spread over 3 users.
	for i := 0; i < 15; i++ {
		testutil.SeedResponseEvent(t, ctx, tx, users[i%3], "q2", i < 9, 20000, base.Add(time.Duration(i)*time.Minute))
	}

	agg, err := repo.AggregateByQuestion(ctx, tx, "q2", base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("AggregateByQuestion: %v", err)
	}
	if agg == nil {
		t.Fatal("expected aggregate for q2")
	}
	if agg.TotalAttempts != 15 || agg.TotalCorrect != 9 {
		t.Fatalf("aggregate = %d attempts / %d correct, want 15 / 9", agg.TotalAttempts, agg.TotalCorrect)
	}
	if agg.UniqueUsers != 3 {
		t.Fatalf("unique users = %d, want 3", agg.UniqueUsers)
	}
	if agg.AvgResponseTimeMS == nil || *agg.AvgResponseTimeMS != 20000 {
		t.Fatalf("avg response time = %v, want 20000", agg.AvgResponseTimeMS)
	}

	// Events outside the window are invisible.
	windowed, err := repo.AggregateByQuestion(ctx, tx, "q2", base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("AggregateByQuestion windowed: %v", err)
	}
	if windowed == nil || windowed.TotalAttempts >= 15 {
		t.Fatalf("window not applied: %+v", windowed)
	}
}

func TestAggregateByQuestionEmpty(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := events.NewResponseEventRepo(tx, testutil.Logger(t))

	agg, err := repo.AggregateByQuestion(context.Background(), tx, "no-such-question", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("AggregateByQuestion: %v", err)
	}
	if agg != nil {
		t.Fatalf("no events should yield (nil, nil), got %+v", agg)
	}
}

func TestListEligibleQuestionIDs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := events.NewResponseEventRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	userID := uuid.New()
	for i := 0; i < 12; i++ {
		testutil.SeedResponseEvent(t, ctx, tx, userID, "popular", i%2 == 0, 15000, base)
	}
	for i := 0; i < 3; i++ {
		testutil.SeedResponseEvent(t, ctx, tx, userID, "rare", true, 15000, base)
	}

	ids, err := repo.ListEligibleQuestionIDs(ctx, tx, base.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("ListEligibleQuestionIDs: %v", err)
	}
	found := map[string]bool{}
	for _, id := range ids {
		found[id] = true
	}
	if !found["popular"] {
		t.Fatalf("popular question missing from %v", ids)
	}
	if found["rare"] {
		t.Fatalf("rare question (3 < 10 samples) should be excluded: %v", ids)
	}
}

func TestGlobalAggregate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := events.NewResponseEventRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	u1, u2 := uuid.New(), uuid.New()
	testutil.SeedResponseEvent(t, ctx, tx, u1, "g1", true, 10000, base)
	testutil.SeedResponseEvent(t, ctx, tx, u1, "g2", false, 20000, base)
	testutil.SeedResponseEvent(t, ctx, tx, u2, "g1", true, 30000, base)

	agg, err := repo.GlobalAggregate(ctx, tx, base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("GlobalAggregate: %v", err)
	}
	if agg.TotalResponses < 3 {
		t.Fatalf("total responses = %d, want >= 3", agg.TotalResponses)
	}
	if agg.TotalQuestions < 2 || agg.TotalUsers < 2 {
		t.Fatalf("distinct counts = %d questions / %d users", agg.TotalQuestions, agg.TotalUsers)
	}
	if agg.GlobalSuccessRate == nil {
		t.Fatal("global success rate should be non-nil with events present")
	}

	active, err := repo.CountActiveUsers(ctx, tx, base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountActiveUsers: %v", err)
	}
	if active < 2 {
		t.Fatalf("active users = %d, want >= 2", active)
	}
}
