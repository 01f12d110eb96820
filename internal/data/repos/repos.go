package repos

import (
	"gorm.io/gorm"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos/bandit"
	"github.com/mabquiz/mabquiz-backend/internal/data/repos/events"
	"github.com/mabquiz/mabquiz-backend/internal/data/repos/jobs"
	"github.com/mabquiz/mabquiz-backend/internal/data/repos/metrics"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

type QuestionArmRepo = bandit.QuestionArmRepo
type TopicArmRepo = bandit.TopicArmRepo
type ResponseEventRepo = events.ResponseEventRepo
type QuestionMetricsRepo = metrics.QuestionMetricsRepo
type JobRunRepo = jobs.JobRunRepo

func NewQuestionArmRepo(db *gorm.DB, baseLog *logger.Logger) QuestionArmRepo {
	return bandit.NewQuestionArmRepo(db, baseLog)
}

func NewTopicArmRepo(db *gorm.DB, baseLog *logger.Logger) TopicArmRepo {
	return bandit.NewTopicArmRepo(db, baseLog)
}

func NewResponseEventRepo(db *gorm.DB, baseLog *logger.Logger) ResponseEventRepo {
	return events.NewResponseEventRepo(db, baseLog)
}

func NewQuestionMetricsRepo(db *gorm.DB, baseLog *logger.Logger) QuestionMetricsRepo {
	return metrics.NewQuestionMetricsRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
