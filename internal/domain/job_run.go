package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// JobRun is one unit of background work in the DB-backed queue. Workers
// claim runnable rows with FOR UPDATE SKIP LOCKED; failed rows become
// runnable again after an exponential backoff until attempts reaches the
// configured maximum.
type JobRun struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobType string    `gorm:"column:job_type;size:64;not null;index" json:"job_type"`
	Status  string    `gorm:"size:20;not null;index" json:"status"`

	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	LockedAt    *time.Time `gorm:"index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time `gorm:"index" json:"last_error_at,omitempty"`

	Payload datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Result  datatypes.JSON `gorm:"type:jsonb" json:"result"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}
