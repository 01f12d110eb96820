package bandit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mabquiz/mabquiz-backend/internal/domain"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

// QuestionArmRepo is the durable store for per-(user, question) bandit
// state. Get* return (nil, nil) when the arm does not exist.
type QuestionArmRepo interface {
	Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID, questionID string) (*domain.QuestionArm, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, questionID string) (*domain.QuestionArm, error)
	Create(ctx context.Context, tx *gorm.DB, arm *domain.QuestionArm) error
	Save(ctx context.Context, tx *gorm.DB, arm *domain.QuestionArm) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.QuestionArm, error)
	ListUpdatedSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*domain.QuestionArm, error)
	CountByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
}

type questionArmRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionArmRepo(db *gorm.DB, baseLog *logger.Logger) QuestionArmRepo {
	return &questionArmRepo{db: db, log: baseLog.With("repo", "QuestionArmRepo")}
}

func (r *questionArmRepo) Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID, questionID string) (*domain.QuestionArm, error) {
	return r.get(ctx, tx, userID, questionID, false)
}

func (r *questionArmRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, questionID string) (*domain.QuestionArm, error) {
	return r.get(ctx, tx, userID, questionID, true)
}

func (r *questionArmRepo) get(ctx context.Context, tx *gorm.DB, userID uuid.UUID, questionID string, lock bool) (*domain.QuestionArm, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var arm domain.QuestionArm
	err := q.Where("user_id = ? AND question_id = ?", userID, questionID).First(&arm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &arm, nil
}

func (r *questionArmRepo) Create(ctx context.Context, tx *gorm.DB, arm *domain.QuestionArm) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(arm).Error
}

func (r *questionArmRepo) Save(ctx context.Context, tx *gorm.DB, arm *domain.QuestionArm) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(arm).Error
}

func (r *questionArmRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.QuestionArm, error) {
	return r.ListUpdatedSince(ctx, tx, userID, time.Time{})
}

// ListUpdatedSince returns the user's arms whose updated_at is strictly
// after since. A zero since means all arms (the sync bootstrap case).
func (r *questionArmRepo) ListUpdatedSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*domain.QuestionArm, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(ctx).Where("user_id = ?", userID)
	if !since.IsZero() {
		q = q.Where("updated_at > ?", since)
	}

	var out []*domain.QuestionArm
	if err := q.Order("question_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionArmRepo) CountByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	err := transaction.WithContext(ctx).
		Model(&domain.QuestionArm{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
