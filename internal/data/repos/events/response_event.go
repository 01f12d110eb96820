package events

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mabquiz/mabquiz-backend/internal/domain"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

// QuestionAggregate is the windowed rollup of the response log for one
// question, the raw input to the difficulty calculator.
type QuestionAggregate struct {
	QuestionID        string   `json:"question_id"`
	TotalAttempts     int64    `json:"total_attempts"`
	TotalCorrect      int64    `json:"total_correct"`
	AvgResponseTimeMS *float64 `json:"avg_response_time_ms"`
	UniqueUsers       int64    `json:"unique_users"`
}

// GlobalAggregate is the windowed rollup across the whole response log.
type GlobalAggregate struct {
	TotalQuestions    int64    `json:"total_questions"`
	TotalUsers        int64    `json:"total_users"`
	TotalResponses    int64    `json:"total_responses"`
	GlobalSuccessRate *float64 `json:"global_success_rate"`
	AvgResponseTimeMS *float64 `json:"avg_response_time_ms"`
	ActiveDays        int64    `json:"active_days"`
}

type ResponseEventRepo interface {
	Append(ctx context.Context, tx *gorm.DB, ev *domain.ResponseEvent) error
	AggregateByQuestion(ctx context.Context, tx *gorm.DB, questionID string, since time.Time) (*QuestionAggregate, error)
	CountActiveUsers(ctx context.Context, tx *gorm.DB, since time.Time) (int64, error)
	ListEligibleQuestionIDs(ctx context.Context, tx *gorm.DB, since time.Time, minSamples int) ([]string, error)
	GlobalAggregate(ctx context.Context, tx *gorm.DB, since time.Time) (*GlobalAggregate, error)
}

type responseEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResponseEventRepo(db *gorm.DB, baseLog *logger.Logger) ResponseEventRepo {
	return &responseEventRepo{db: db, log: baseLog.With("repo", "ResponseEventRepo")}
}

func (r *responseEventRepo) Append(ctx context.Context, tx *gorm.DB, ev *domain.ResponseEvent) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(ev).Error
}

// AggregateByQuestion returns (nil, nil) when the question has no events
// in the window.
func (r *responseEventRepo) AggregateByQuestion(ctx context.Context, tx *gorm.DB, questionID string, since time.Time) (*QuestionAggregate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var agg QuestionAggregate
	err := transaction.WithContext(ctx).Raw(`
		SELECT
			question_id,
			COUNT(*) AS total_attempts,
			SUM(CASE WHEN is_correct THEN 1 ELSE 0 END) AS total_correct,
			AVG(response_time_ms) AS avg_response_time_ms,
			COUNT(DISTINCT user_id) AS unique_users
		FROM response_events
		WHERE question_id = ? AND created_at >= ?
		GROUP BY question_id
	`, questionID, since).Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	if agg.TotalAttempts == 0 {
		return nil, nil
	}
	return &agg, nil
}

func (r *responseEventRepo) CountActiveUsers(ctx context.Context, tx *gorm.DB, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	err := transaction.WithContext(ctx).Raw(`
		SELECT COUNT(DISTINCT user_id) FROM response_events WHERE created_at >= ?
	`, since).Scan(&count).Error
	return count, err
}

// ListEligibleQuestionIDs discovers the questions with at least
// minSamples responses in the window, for batch recomputation without an
// explicit id set.
func (r *responseEventRepo) ListEligibleQuestionIDs(ctx context.Context, tx *gorm.DB, since time.Time, minSamples int) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var ids []string
	err := transaction.WithContext(ctx).Raw(`
		SELECT question_id
		FROM response_events
		WHERE created_at >= ?
		GROUP BY question_id
		HAVING COUNT(*) >= ?
		ORDER BY question_id ASC
	`, since, minSamples).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *responseEventRepo) GlobalAggregate(ctx context.Context, tx *gorm.DB, since time.Time) (*GlobalAggregate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var agg GlobalAggregate
	err := transaction.WithContext(ctx).Raw(`
		SELECT
			COUNT(DISTINCT question_id) AS total_questions,
			COUNT(DISTINCT user_id) AS total_users,
			COUNT(*) AS total_responses,
			AVG(CASE WHEN is_correct THEN 1.0 ELSE 0.0 END) AS global_success_rate,
			AVG(response_time_ms) AS avg_response_time_ms,
			COUNT(DISTINCT DATE(created_at)) AS active_days
		FROM response_events
		WHERE created_at >= ?
	`, since).Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
