package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos/jobs"
	"github.com/mabquiz/mabquiz-backend/internal/data/repos/testutil"
	"github.com/mabquiz/mabquiz-backend/internal/domain"
)

func seedJob(t *testing.T, ctx context.Context, repo jobs.JobRunRepo, status string) *domain.JobRun {
	t.Helper()
	now := time.Now().UTC()
	job := &domain.JobRun{
		ID:        uuid.New(),
		JobType:   "difficulty_recompute",
		Status:    status,
		Payload:   datatypes.JSON([]byte(`{"window_days":30}`)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, nil, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestClaimNextRunnableQueued(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := jobs.NewJobRunRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	seeded := seedJob(t, ctx, repo, domain.JobStatusQueued)

	claimed, err := repo.ClaimNextRunnable(ctx, tx, 3, 30*time.Second, 2*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != seeded.ID {
		t.Fatalf("claimed %+v, want seeded job", claimed)
	}
	if claimed.Status != domain.JobStatusRunning {
		t.Fatalf("claimed status = %s, want running", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", claimed.Attempts)
	}
	if claimed.LockedAt == nil || claimed.HeartbeatAt == nil {
		t.Fatal("lock and heartbeat timestamps must be set on claim")
	}

	// Nothing else runnable now.
	again, err := repo.ClaimNextRunnable(ctx, tx, 3, 30*time.Second, 2*time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("second claim should be empty, got %+v", again)
	}
}

func TestClaimSkipsFailedInsideBackoff(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := jobs.NewJobRunRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	job := seedJob(t, ctx, repo, domain.JobStatusQueued)

	// Fail it just now: the 30s backoff has not elapsed.
	now := time.Now().UTC()
	if err := repo.UpdateFields(ctx, tx, job.ID, map[string]interface{}{
		"status":        domain.JobStatusFailed,
		"attempts":      1,
		"last_error_at": now,
	}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(ctx, tx, 3, 30*time.Second, 2*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed != nil {
		t.Fatalf("failed job inside backoff should not be claimable, got %+v", claimed)
	}

	// Push the failure into the past: now it is runnable again.
	if err := repo.UpdateFields(ctx, tx, job.ID, map[string]interface{}{
		"last_error_at": now.Add(-5 * time.Minute),
	}); err != nil {
		t.Fatalf("age failure: %v", err)
	}
	claimed, err = repo.ClaimNextRunnable(ctx, tx, 3, 30*time.Second, 2*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable after backoff: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected retry claim, got %+v", claimed)
	}
	if claimed.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", claimed.Attempts)
	}
}

func TestClaimRespectsMaxAttempts(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := jobs.NewJobRunRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	job := seedJob(t, ctx, repo, domain.JobStatusQueued)
	if err := repo.UpdateFields(ctx, tx, job.ID, map[string]interface{}{
		"status":        domain.JobStatusFailed,
		"attempts":      3,
		"last_error_at": time.Now().UTC().Add(-24 * time.Hour),
	}); err != nil {
		t.Fatalf("exhaust attempts: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(ctx, tx, 3, 30*time.Second, 2*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed != nil {
		t.Fatalf("exhausted job must stay failed, got %+v", claimed)
	}
}

func TestClaimReclaimsStaleRunning(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := jobs.NewJobRunRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	job := seedJob(t, ctx, repo, domain.JobStatusQueued)
	stale := time.Now().UTC().Add(-10 * time.Minute)
	if err := repo.UpdateFields(ctx, tx, job.ID, map[string]interface{}{
		"status":       domain.JobStatusRunning,
		"attempts":     1,
		"locked_at":    stale,
		"heartbeat_at": stale,
	}); err != nil {
		t.Fatalf("mark stale running: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(ctx, tx, 3, 30*time.Second, 2*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("stale running job should be reclaimed, got %+v", claimed)
	}
}

func TestGetByIDAndHeartbeat(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := jobs.NewJobRunRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	missing, err := repo.GetByID(ctx, tx, uuid.New())
	if err != nil {
		t.Fatalf("GetByID missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing job should be (nil, nil), got %+v", missing)
	}

	job := seedJob(t, ctx, repo, domain.JobStatusQueued)
	if err := repo.Heartbeat(ctx, tx, job.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.HeartbeatAt == nil {
		t.Fatalf("heartbeat not persisted: %+v", got)
	}
}
