package metrics

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mabquiz/mabquiz-backend/internal/domain"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

// DifficultyBucket is one row of the category distribution over the
// currently active metrics.
type DifficultyBucket struct {
	ComputedDifficulty string  `json:"computed_difficulty"`
	Count              int64   `json:"count"`
	AvgSuccessRate     float64 `json:"avg_success_rate"`
}

type QuestionMetricsRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, m *domain.QuestionMetrics) error
	GetActive(ctx context.Context, tx *gorm.DB, questionID string) (*domain.QuestionMetrics, error)
	ListActiveByIDs(ctx context.Context, tx *gorm.DB, questionIDs []string, computedAfter *time.Time) ([]*domain.QuestionMetrics, error)
	DifficultyDistribution(ctx context.Context, tx *gorm.DB) ([]DifficultyBucket, error)
	DeactivateStale(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type questionMetricsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionMetricsRepo(db *gorm.DB, baseLog *logger.Logger) QuestionMetricsRepo {
	return &questionMetricsRepo{db: db, log: baseLog.With("repo", "QuestionMetricsRepo")}
}

// Upsert supersedes the question's row wholesale, keyed on question_id.
func (r *questionMetricsRepo) Upsert(ctx context.Context, tx *gorm.DB, m *domain.QuestionMetrics) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"global_success_rate",
			"total_attempts",
			"average_response_time",
			"reach_rate",
			"difficulty_score",
			"computed_difficulty",
			"confidence_lower",
			"confidence_upper",
			"last_computed",
			"is_active",
			"updated_at",
		}),
	}).Create(m).Error
}

func (r *questionMetricsRepo) GetActive(ctx context.Context, tx *gorm.DB, questionID string) (*domain.QuestionMetrics, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var m domain.QuestionMetrics
	err := transaction.WithContext(ctx).
		Where("question_id = ? AND is_active = ?", questionID, true).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *questionMetricsRepo) ListActiveByIDs(ctx context.Context, tx *gorm.DB, questionIDs []string, computedAfter *time.Time) ([]*domain.QuestionMetrics, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var out []*domain.QuestionMetrics
	if len(questionIDs) == 0 {
		return out, nil
	}

	q := transaction.WithContext(ctx).
		Where("question_id IN ? AND is_active = ?", questionIDs, true)
	if computedAfter != nil {
		q = q.Where("last_computed >= ?", *computedAfter)
	}

	if err := q.Order("question_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeactivateStale soft-deletes metrics whose last computation is older
// than the cutoff. The rows stay for audit; the active read paths skip
// them.
func (r *questionMetricsRepo) DeactivateStale(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&domain.QuestionMetrics{}).
		Where("last_computed < ? AND is_active = ?", cutoff, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *questionMetricsRepo) DifficultyDistribution(ctx context.Context, tx *gorm.DB) ([]DifficultyBucket, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []DifficultyBucket
	err := transaction.WithContext(ctx).Raw(`
		SELECT
			computed_difficulty,
			COUNT(*) AS count,
			AVG(global_success_rate) AS avg_success_rate
		FROM question_metrics
		WHERE is_active = TRUE
		GROUP BY computed_difficulty
	`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
