package testutil

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/mabquiz/mabquiz-backend/internal/domain"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			dbErr = errMissingDSN
			return
		}

		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if err != nil {
			dbErr = err
			return
		}

		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			dbErr = err
			return
		}

		if err := autoMigrateAll(db); err != nil {
			dbErr = err
			return
		}
	})

	if errors.Is(dbErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func autoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.QuestionArm{},
		&domain.TopicArm{},
		&domain.ResponseEvent{},
		&domain.QuestionMetrics{},
		&domain.JobRun{},
	)
}

func SeedQuestionArm(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, questionID string, updatedAt time.Time) *domain.QuestionArm {
	tb.Helper()
	arm := &domain.QuestionArm{
		ID:             uuid.New(),
		UserID:         userID,
		QuestionID:     questionID,
		Difficulty:     domain.DifficultyUnknown,
		Alpha:          1,
		Beta:           1,
		UserConfidence: 0.5,
		CreatedAt:      updatedAt,
		UpdatedAt:      updatedAt,
	}
	if err := tx.WithContext(ctx).Create(arm).Error; err != nil {
		tb.Fatalf("seed question arm: %v", err)
	}
	return arm
}

func SeedResponseEvent(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, questionID string, correct bool, rtMS int64, at time.Time) *domain.ResponseEvent {
	tb.Helper()
	ev := &domain.ResponseEvent{
		ID:             uuid.New(),
		UserID:         userID,
		QuestionID:     questionID,
		IsCorrect:      correct,
		ResponseTimeMS: rtMS,
		CreatedAt:      at,
	}
	if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
		tb.Fatalf("seed response event: %v", err)
	}
	return ev
}

func PtrTime(v time.Time) *time.Time { return &v }
