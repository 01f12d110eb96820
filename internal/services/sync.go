package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos"
	"github.com/mabquiz/mabquiz-backend/internal/domain"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

// QuestionArmSnapshot is a client-held question arm on the wire.
// Timestamps are epoch milliseconds, set by whichever device produced
// the snapshot.
type QuestionArmSnapshot struct {
	QuestionID          string  `json:"question_id"`
	Attempts            int     `json:"attempts"`
	Successes           int     `json:"successes"`
	Failures            int     `json:"failures"`
	TotalResponseTimeMS int64   `json:"total_response_time_ms"`
	Alpha               float64 `json:"alpha"`
	Beta                float64 `json:"beta"`
	UserConfidence      float64 `json:"user_confidence"`
	LastAttempted       *int64  `json:"last_attempted,omitempty"`
	CreatedAt           int64   `json:"created_at"`
	UpdatedAt           int64   `json:"updated_at"`
}

type TopicArmSnapshot struct {
	TopicKey            string  `json:"topic_key"`
	Topic               string  `json:"topic"`
	KnowledgeType       string  `json:"knowledge_type"`
	Course              string  `json:"course"`
	Attempts            int     `json:"attempts"`
	Successes           int     `json:"successes"`
	Failures            int     `json:"failures"`
	TotalResponseTimeMS int64   `json:"total_response_time_ms"`
	Alpha               float64 `json:"alpha"`
	Beta                float64 `json:"beta"`
	CreatedAt           int64   `json:"created_at"`
	UpdatedAt           int64   `json:"updated_at"`
}

type SyncRequest struct {
	LastSyncTime int64                 `json:"last_sync_time"`
	QuestionArms []QuestionArmSnapshot `json:"question_arms"`
	TopicArms    []TopicArmSnapshot    `json:"topic_arms"`
}

type SyncResponse struct {
	ServerTime        int64                 `json:"server_time"`
	QuestionArms      []QuestionArmSnapshot `json:"question_arms"`
	TopicArms         []TopicArmSnapshot    `json:"topic_arms"`
	ConflictsResolved int                   `json:"conflicts_resolved"`
}

type SyncStatus struct {
	UserID           uuid.UUID `json:"user_id"`
	QuestionArmCount int64     `json:"question_arm_count"`
	TopicArmCount    int64     `json:"topic_arm_count"`
	ServerTime       int64     `json:"server_time"`
}

// ErrInvalidSyncRequest marks a rejected batch. Every validation
// failure wraps it, so transports can branch with errors.Is instead of
// inspecting message text.
var ErrInvalidSyncRequest = errors.New("invalid sync request")

func invalidSyncf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidSyncRequest, fmt.Sprintf(format, args...))
}

// Validate rejects a malformed batch before any merge logic runs: the
// whole request is refused, nothing partial ever reaches the store.
func (req *SyncRequest) Validate() error {
	for i, a := range req.QuestionArms {
		if a.QuestionID == "" {
			return invalidSyncf("question_arms[%d]: question_id is required", i)
		}
		if err := validateArmCounters("question_arms", i, a.Attempts, a.Successes, a.Failures, a.TotalResponseTimeMS, a.Alpha, a.Beta); err != nil {
			return err
		}
		if a.UserConfidence < 0 || a.UserConfidence > 1 {
			return invalidSyncf("question_arms[%d]: user_confidence must be within [0,1]", i)
		}
		if a.UpdatedAt <= 0 {
			return invalidSyncf("question_arms[%d]: updated_at is required", i)
		}
	}
	for i, a := range req.TopicArms {
		if a.TopicKey == "" {
			return invalidSyncf("topic_arms[%d]: topic_key is required", i)
		}
		if err := validateArmCounters("topic_arms", i, a.Attempts, a.Successes, a.Failures, a.TotalResponseTimeMS, a.Alpha, a.Beta); err != nil {
			return err
		}
		if a.UpdatedAt <= 0 {
			return invalidSyncf("topic_arms[%d]: updated_at is required", i)
		}
	}
	return nil
}

func validateArmCounters(list string, i int, attempts, successes, failures int, totalMS int64, alpha, beta float64) error {
	if attempts < 0 || successes < 0 || failures < 0 || totalMS < 0 {
		return invalidSyncf("%s[%d]: counters must be non-negative", list, i)
	}
	if attempts != successes+failures {
		return invalidSyncf("%s[%d]: attempts must equal successes + failures", list, i)
	}
	if alpha <= 0 || beta <= 0 {
		return invalidSyncf("%s[%d]: alpha and beta must be positive", list, i)
	}
	return nil
}

type SyncService interface {
	Sync(ctx context.Context, userID uuid.UUID, req SyncRequest) (*SyncResponse, error)
	Status(ctx context.Context, userID uuid.UUID) (*SyncStatus, error)
}

type syncService struct {
	db           *gorm.DB
	log          *logger.Logger
	questionArms repos.QuestionArmRepo
	topicArms    repos.TopicArmRepo
}

func NewSyncService(
	db *gorm.DB,
	baseLog *logger.Logger,
	questionArms repos.QuestionArmRepo,
	topicArms repos.TopicArmRepo,
) SyncService {
	return &syncService{
		db:           db,
		log:          baseLog.With("service", "SyncService"),
		questionArms: questionArms,
		topicArms:    topicArms,
	}
}

// Sync merges the client's arm snapshots last-write-wins and returns
// every server arm updated after the client's checkpoint. The whole
// batch commits or none of it does, so an unchanged request is safe to
// replay.
func (s *syncService) Sync(ctx context.Context, userID uuid.UUID, req SyncRequest) (*SyncResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	since := timeFromEpochMS(req.LastSyncTime)

	var resp *SyncResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conflicts := 0

		for i := range req.QuestionArms {
			won, err := s.mergeQuestionArm(ctx, tx, userID, &req.QuestionArms[i])
			if err != nil {
				return err
			}
			if won {
				conflicts++
			}
		}
		for i := range req.TopicArms {
			won, err := s.mergeTopicArm(ctx, tx, userID, &req.TopicArms[i])
			if err != nil {
				return err
			}
			if won {
				conflicts++
			}
		}

		qArms, err := s.questionArms.ListUpdatedSince(ctx, tx, userID, since)
		if err != nil {
			return fmt.Errorf("list question arms: %w", err)
		}
		tArms, err := s.topicArms.ListUpdatedSince(ctx, tx, userID, since)
		if err != nil {
			return fmt.Errorf("list topic arms: %w", err)
		}

		resp = &SyncResponse{
			ServerTime:        epochMS(time.Now().UTC()),
			QuestionArms:      make([]QuestionArmSnapshot, 0, len(qArms)),
			TopicArms:         make([]TopicArmSnapshot, 0, len(tArms)),
			ConflictsResolved: conflicts,
		}
		for _, a := range qArms {
			resp.QuestionArms = append(resp.QuestionArms, questionArmToSnapshot(a))
		}
		for _, a := range tArms {
			resp.TopicArms = append(resp.TopicArms, topicArmToSnapshot(a))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("mab sync completed",
		"user_id", userID.String(),
		"submitted_question_arms", len(req.QuestionArms),
		"submitted_topic_arms", len(req.TopicArms),
		"returned_question_arms", len(resp.QuestionArms),
		"returned_topic_arms", len(resp.TopicArms),
		"conflicts_resolved", resp.ConflictsResolved,
	)
	return resp, nil
}

// mergeQuestionArm applies one snapshot: insert verbatim when absent,
// whole-record overwrite when the submission is strictly newer,
// otherwise keep the stored record. Returns whether the submission won
// an overwrite.
func (s *syncService) mergeQuestionArm(ctx context.Context, tx *gorm.DB, userID uuid.UUID, snap *QuestionArmSnapshot) (bool, error) {
	existing, err := s.questionArms.GetForUpdate(ctx, tx, userID, snap.QuestionID)
	if err != nil {
		return false, fmt.Errorf("get question arm %q: %w", snap.QuestionID, err)
	}

	if existing == nil {
		arm := &domain.QuestionArm{
			ID:     uuid.New(),
			UserID: userID,
		}
		applyQuestionSnapshot(arm, snap)
		if err := s.questionArms.Create(ctx, tx, arm); err != nil {
			return false, fmt.Errorf("insert question arm %q: %w", snap.QuestionID, err)
		}
		return false, nil
	}

	if !submissionWins(snap.UpdatedAt, existing.UpdatedAt) {
		return false, nil
	}

	applyQuestionSnapshot(existing, snap)
	if err := s.questionArms.Save(ctx, tx, existing); err != nil {
		return false, fmt.Errorf("overwrite question arm %q: %w", snap.QuestionID, err)
	}
	return true, nil
}

func (s *syncService) mergeTopicArm(ctx context.Context, tx *gorm.DB, userID uuid.UUID, snap *TopicArmSnapshot) (bool, error) {
	existing, err := s.topicArms.GetForUpdate(ctx, tx, userID, snap.TopicKey)
	if err != nil {
		return false, fmt.Errorf("get topic arm %q: %w", snap.TopicKey, err)
	}

	if existing == nil {
		arm := &domain.TopicArm{
			ID:     uuid.New(),
			UserID: userID,
		}
		applyTopicSnapshot(arm, snap)
		if err := s.topicArms.Create(ctx, tx, arm); err != nil {
			return false, fmt.Errorf("insert topic arm %q: %w", snap.TopicKey, err)
		}
		return false, nil
	}

	if !submissionWins(snap.UpdatedAt, existing.UpdatedAt) {
		return false, nil
	}

	applyTopicSnapshot(existing, snap)
	if err := s.topicArms.Save(ctx, tx, existing); err != nil {
		return false, fmt.Errorf("overwrite topic arm %q: %w", snap.TopicKey, err)
	}
	return true, nil
}

// submissionWins is the last-write-wins comparison: the submission
// replaces the stored record only when strictly newer, or when the
// stored timestamp was never set.
func submissionWins(submittedMS int64, stored time.Time) bool {
	if stored.IsZero() {
		return true
	}
	return submittedMS > epochMS(stored)
}

func applyQuestionSnapshot(arm *domain.QuestionArm, snap *QuestionArmSnapshot) {
	arm.QuestionID = snap.QuestionID
	arm.Attempts = snap.Attempts
	arm.Successes = snap.Successes
	arm.Failures = snap.Failures
	arm.TotalResponseTimeMS = snap.TotalResponseTimeMS
	arm.Alpha = snap.Alpha
	arm.Beta = snap.Beta
	arm.UserConfidence = snap.UserConfidence
	if snap.LastAttempted != nil {
		t := timeFromEpochMS(*snap.LastAttempted)
		arm.LastAttempted = &t
	} else {
		arm.LastAttempted = nil
	}
	arm.CreatedAt = timeFromEpochMS(snap.CreatedAt)
	arm.UpdatedAt = timeFromEpochMS(snap.UpdatedAt)
}

func applyTopicSnapshot(arm *domain.TopicArm, snap *TopicArmSnapshot) {
	arm.TopicKey = snap.TopicKey
	arm.Topic = snap.Topic
	arm.KnowledgeType = snap.KnowledgeType
	arm.Course = snap.Course
	arm.Attempts = snap.Attempts
	arm.Successes = snap.Successes
	arm.Failures = snap.Failures
	arm.TotalResponseTimeMS = snap.TotalResponseTimeMS
	arm.Alpha = snap.Alpha
	arm.Beta = snap.Beta
	arm.CreatedAt = timeFromEpochMS(snap.CreatedAt)
	arm.UpdatedAt = timeFromEpochMS(snap.UpdatedAt)
}

func questionArmToSnapshot(arm *domain.QuestionArm) QuestionArmSnapshot {
	snap := QuestionArmSnapshot{
		QuestionID:          arm.QuestionID,
		Attempts:            arm.Attempts,
		Successes:           arm.Successes,
		Failures:            arm.Failures,
		TotalResponseTimeMS: arm.TotalResponseTimeMS,
		Alpha:               arm.Alpha,
		Beta:                arm.Beta,
		UserConfidence:      arm.UserConfidence,
		CreatedAt:           epochMS(arm.CreatedAt),
		UpdatedAt:           epochMS(arm.UpdatedAt),
	}
	if arm.LastAttempted != nil {
		ms := epochMS(*arm.LastAttempted)
		snap.LastAttempted = &ms
	}
	return snap
}

func topicArmToSnapshot(arm *domain.TopicArm) TopicArmSnapshot {
	return TopicArmSnapshot{
		TopicKey:            arm.TopicKey,
		Topic:               arm.Topic,
		KnowledgeType:       arm.KnowledgeType,
		Course:              arm.Course,
		Attempts:            arm.Attempts,
		Successes:           arm.Successes,
		Failures:            arm.Failures,
		TotalResponseTimeMS: arm.TotalResponseTimeMS,
		Alpha:               arm.Alpha,
		Beta:                arm.Beta,
		CreatedAt:           epochMS(arm.CreatedAt),
		UpdatedAt:           epochMS(arm.UpdatedAt),
	}
}

func (s *syncService) Status(ctx context.Context, userID uuid.UUID) (*SyncStatus, error) {
	qCount, err := s.questionArms.CountByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	tCount, err := s.topicArms.CountByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	return &SyncStatus{
		UserID:           userID,
		QuestionArmCount: qCount,
		TopicArmCount:    tCount,
		ServerTime:       epochMS(time.Now().UTC()),
	}, nil
}

func epochMS(t time.Time) int64 {
	return t.UnixMilli()
}

// timeFromEpochMS converts a wire timestamp; values <= 0 map to the
// zero time, which downstream queries treat as "everything".
func timeFromEpochMS(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
