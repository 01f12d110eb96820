package app

import (
	"gorm.io/gorm"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

type Repos struct {
	QuestionArms    repos.QuestionArmRepo
	TopicArms       repos.TopicArmRepo
	ResponseEvents  repos.ResponseEventRepo
	QuestionMetrics repos.QuestionMetricsRepo
	JobRuns         repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		QuestionArms:    repos.NewQuestionArmRepo(db, log),
		TopicArms:       repos.NewTopicArmRepo(db, log),
		ResponseEvents:  repos.NewResponseEventRepo(db, log),
		QuestionMetrics: repos.NewQuestionMetricsRepo(db, log),
		JobRuns:         repos.NewJobRunRepo(db, log),
	}
}
