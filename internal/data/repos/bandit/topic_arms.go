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

type TopicArmRepo interface {
	Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID, topicKey string) (*domain.TopicArm, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, topicKey string) (*domain.TopicArm, error)
	Create(ctx context.Context, tx *gorm.DB, arm *domain.TopicArm) error
	Save(ctx context.Context, tx *gorm.DB, arm *domain.TopicArm) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.TopicArm, error)
	ListUpdatedSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*domain.TopicArm, error)
	CountByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
}

type topicArmRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicArmRepo(db *gorm.DB, baseLog *logger.Logger) TopicArmRepo {
	return &topicArmRepo{db: db, log: baseLog.With("repo", "TopicArmRepo")}
}

func (r *topicArmRepo) Get(ctx context.Context, tx *gorm.DB, userID uuid.UUID, topicKey string) (*domain.TopicArm, error) {
	return r.get(ctx, tx, userID, topicKey, false)
}

func (r *topicArmRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, topicKey string) (*domain.TopicArm, error) {
	return r.get(ctx, tx, userID, topicKey, true)
}

func (r *topicArmRepo) get(ctx context.Context, tx *gorm.DB, userID uuid.UUID, topicKey string, lock bool) (*domain.TopicArm, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var arm domain.TopicArm
	err := q.Where("user_id = ? AND topic_key = ?", userID, topicKey).First(&arm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &arm, nil
}

func (r *topicArmRepo) Create(ctx context.Context, tx *gorm.DB, arm *domain.TopicArm) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(arm).Error
}

func (r *topicArmRepo) Save(ctx context.Context, tx *gorm.DB, arm *domain.TopicArm) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(arm).Error
}

func (r *topicArmRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*domain.TopicArm, error) {
	return r.ListUpdatedSince(ctx, tx, userID, time.Time{})
}

func (r *topicArmRepo) ListUpdatedSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*domain.TopicArm, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(ctx).Where("user_id = ?", userID)
	if !since.IsZero() {
		q = q.Where("updated_at > ?", since)
	}

	var out []*domain.TopicArm
	if err := q.Order("topic_key ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *topicArmRepo) CountByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	err := transaction.WithContext(ctx).
		Model(&domain.TopicArm{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
