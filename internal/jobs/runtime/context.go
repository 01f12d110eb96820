package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos"
	"github.com/mabquiz/mabquiz-backend/internal/domain"
)

// Context is the execution handle for one claimed job run. Handlers
// never touch the job_run row directly; state transitions go through
// Heartbeat, Complete, and Fail.
type Context struct {
	Ctx  context.Context
	DB   *gorm.DB
	Job  *domain.JobRun
	Repo repos.JobRunRepo
}

func NewContext(ctx context.Context, db *gorm.DB, job *domain.JobRun, repo repos.JobRunRepo) *Context {
	return &Context{
		Ctx:  ctx,
		DB:   db,
		Job:  job,
		Repo: repo,
	}
}

// DecodePayload unmarshals the job's jsonb payload into out. An empty
// payload is not an error; handlers validate required fields themselves.
func (c *Context) DecodePayload(out interface{}) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(c.Job.Payload, out)
}

func (c *Context) Heartbeat() {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	_ = c.Repo.Heartbeat(c.Ctx, nil, c.Job.ID)
}

// Complete marks the run succeeded, persisting result as the jsonb
// result column.
func (c *Context) Complete(result interface{}) error {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":    domain.JobStatusSucceeded,
		"error":     "",
		"locked_at": nil,
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		updates["result"] = raw
	}
	if err := c.Repo.UpdateFields(c.Ctx, nil, c.Job.ID, updates); err != nil {
		return err
	}

	c.Job.Status = domain.JobStatusSucceeded
	c.Job.Error = ""
	c.Job.LockedAt = nil
	c.Job.UpdatedAt = now
	return nil
}

// Fail marks the run failed with the stage that broke; the claim query
// makes it runnable again after backoff until attempts hit the cap.
func (c *Context) Fail(stage string, err error) {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}

	now := time.Now().UTC()
	msg := stage
	if err != nil {
		msg = stage + ": " + err.Error()
	}

	_ = c.Repo.UpdateFields(c.Ctx, nil, c.Job.ID, map[string]interface{}{
		"status":        domain.JobStatusFailed,
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
	})

	c.Job.Status = domain.JobStatusFailed
	c.Job.Error = msg
	c.Job.LastErrorAt = &now
	c.Job.LockedAt = nil
	c.Job.UpdatedAt = now
}
