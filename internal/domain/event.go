package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResponseEvent is one row of the append-only response log. Rows are
// written once by the ingestion path and only ever read afterwards; the
// difficulty calculator is the sole aggregate consumer.
type ResponseEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	QuestionID string    `gorm:"size:64;not null;index" json:"question_id"`

	IsCorrect      bool     `gorm:"not null" json:"is_correct"`
	ResponseTimeMS int64    `gorm:"column:response_time_ms;not null" json:"response_time_ms"`
	UserAnswer     *string  `gorm:"type:text" json:"user_answer,omitempty"`
	UserConfidence *float64 `json:"user_confidence,omitempty"`

	SessionID     string `gorm:"size:100" json:"session_id,omitempty"`
	Course        string `gorm:"size:64" json:"course,omitempty"`
	Topic         string `gorm:"size:128" json:"topic,omitempty"`
	KnowledgeType string `gorm:"size:64" json:"knowledge_type,omitempty"`

	CreatedAt time.Time `gorm:"not null;index;default:now()" json:"created_at"`
}
