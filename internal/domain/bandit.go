package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
	DifficultyUnknown      = "unknown"
)

// QuestionArm is the per-(user, question) Thompson Sampling state.
// created_at/updated_at are owned by the sync protocol and the update
// engine, never by the ORM: a winning sync merge must store the client's
// timestamps verbatim, so auto timestamps are disabled.
type QuestionArm struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_question_arm" json:"user_id"`
	QuestionID string    `gorm:"size:64;not null;uniqueIndex:idx_user_question_arm" json:"question_id"`
	Difficulty string    `gorm:"size:32;not null;default:unknown" json:"difficulty"`

	Attempts            int   `gorm:"not null;default:0" json:"attempts"`
	Successes           int   `gorm:"not null;default:0" json:"successes"`
	Failures            int   `gorm:"not null;default:0" json:"failures"`
	TotalResponseTimeMS int64 `gorm:"column:total_response_time_ms;not null;default:0" json:"total_response_time_ms"`

	Alpha          float64 `gorm:"not null;default:1" json:"alpha"`
	Beta           float64 `gorm:"not null;default:1" json:"beta"`
	UserConfidence float64 `gorm:"not null;default:0.5" json:"user_confidence"`

	LastAttempted *time.Time `gorm:"index" json:"last_attempted,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;index;autoUpdateTime:false" json:"updated_at"`
}

// TopicArm is the per-(user, topic_key) Thompson Sampling state, where
// topic_key is "<topic>_<knowledgeType>". Topic arms always start from a
// uniform Beta(1,1) prior.
type TopicArm struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_topic_arm" json:"user_id"`
	TopicKey string    `gorm:"size:128;not null;uniqueIndex:idx_user_topic_arm" json:"topic_key"`

	Course        string `gorm:"size:64;not null" json:"course"`
	Topic         string `gorm:"size:128;not null" json:"topic"`
	KnowledgeType string `gorm:"size:64;not null" json:"knowledge_type"`

	Attempts            int   `gorm:"not null;default:0" json:"attempts"`
	Successes           int   `gorm:"not null;default:0" json:"successes"`
	Failures            int   `gorm:"not null;default:0" json:"failures"`
	TotalResponseTimeMS int64 `gorm:"column:total_response_time_ms;not null;default:0" json:"total_response_time_ms"`

	Alpha float64 `gorm:"not null;default:1" json:"alpha"`
	Beta  float64 `gorm:"not null;default:1" json:"beta"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index;autoUpdateTime:false" json:"updated_at"`
}

func TopicKey(topic, knowledgeType string) string {
	return topic + "_" + knowledgeType
}
