package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuestionMetrics holds the population-level difficulty statistics for
// one question. One row per question, superseded wholesale on each
// recomputation.
type QuestionMetrics struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	QuestionID string    `gorm:"size:64;not null;uniqueIndex" json:"question_id"`

	GlobalSuccessRate   float64 `gorm:"not null" json:"global_success_rate"`
	TotalAttempts       int64   `gorm:"not null" json:"total_attempts"`
	AverageResponseTime float64 `gorm:"not null" json:"average_response_time"` // seconds
	ReachRate           float64 `gorm:"not null" json:"reach_rate"`

	DifficultyScore    float64 `gorm:"not null" json:"difficulty_score"`
	ComputedDifficulty string  `gorm:"size:20;not null" json:"computed_difficulty"`

	ConfidenceLower float64 `gorm:"not null" json:"confidence_lower"`
	ConfidenceUpper float64 `gorm:"not null" json:"confidence_upper"`

	LastComputed time.Time `gorm:"not null;index" json:"last_computed"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}
