package services

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos"
	"github.com/mabquiz/mabquiz-backend/internal/domain"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

// ResponseInput is one observed answer from a learner.
type ResponseInput struct {
	QuestionID     string   `json:"question_id" binding:"required"`
	IsCorrect      *bool    `json:"is_correct" binding:"required"`
	ResponseTimeMS int64    `json:"response_time_ms" binding:"min=0"`
	UserAnswer     string   `json:"user_answer,omitempty"`
	UserConfidence *float64 `json:"user_confidence,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	Course         string   `json:"course,omitempty"`
	Topic          string   `json:"topic,omitempty"`
	KnowledgeType  string   `json:"knowledge_type,omitempty"`
}

type BanditService interface {
	RecordResponse(ctx context.Context, userID uuid.UUID, in ResponseInput) (*domain.QuestionArm, error)
	RankQuestionArms(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.QuestionArm, error)
	RankTopicArms(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.TopicArm, error)
}

type banditService struct {
	db           *gorm.DB
	log          *logger.Logger
	questionArms repos.QuestionArmRepo
	topicArms    repos.TopicArmRepo
	eventLog     repos.ResponseEventRepo
	metricsRepo  repos.QuestionMetricsRepo

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBanditService(
	db *gorm.DB,
	baseLog *logger.Logger,
	questionArms repos.QuestionArmRepo,
	topicArms repos.TopicArmRepo,
	eventLog repos.ResponseEventRepo,
	metricsRepo repos.QuestionMetricsRepo,
	rng *rand.Rand,
) BanditService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &banditService{
		db:           db,
		log:          baseLog.With("service", "BanditService"),
		questionArms: questionArms,
		topicArms:    topicArms,
		eventLog:     eventLog,
		metricsRepo:  metricsRepo,
		rng:          rng,
	}
}

// PriorFor maps a question's difficulty tag to its Beta prior.
func PriorFor(difficulty string) (alpha, beta float64) {
	switch difficulty {
	case domain.DifficultyBeginner:
		return 7, 3
	case domain.DifficultyIntermediate:
		return 5, 5
	case domain.DifficultyAdvanced:
		return 3, 7
	default:
		return 1, 1
	}
}

// applyQuestionObservation is the conjugate Bernoulli/Beta update for one
// observed response. The caller must have created or fetched the arm.
func applyQuestionObservation(arm *domain.QuestionArm, isCorrect bool, responseTimeMS int64, at time.Time) error {
	if arm == nil {
		return fmt.Errorf("question arm does not exist")
	}
	arm.Attempts++
	if isCorrect {
		arm.Successes++
		arm.Alpha++
	} else {
		arm.Failures++
		arm.Beta++
	}
	arm.TotalResponseTimeMS += responseTimeMS
	arm.UserConfidence = arm.Alpha / (arm.Alpha + arm.Beta)
	arm.LastAttempted = &at
	arm.UpdatedAt = at
	return nil
}

func applyTopicObservation(arm *domain.TopicArm, isCorrect bool, responseTimeMS int64, at time.Time) error {
	if arm == nil {
		return fmt.Errorf("topic arm does not exist")
	}
	arm.Attempts++
	if isCorrect {
		arm.Successes++
		arm.Alpha++
	} else {
		arm.Failures++
		arm.Beta++
	}
	arm.TotalResponseTimeMS += responseTimeMS
	arm.UpdatedAt = at
	return nil
}

// RecordResponse updates the learner's question arm (creating it from
// the difficulty-tagged prior on first contact), the derived topic arm
// when topic context is present, and appends the ResponseEvent — all in
// one transaction.
func (s *banditService) RecordResponse(ctx context.Context, userID uuid.UUID, in ResponseInput) (*domain.QuestionArm, error) {
	if in.QuestionID == "" {
		return nil, fmt.Errorf("question_id is required")
	}
	if in.IsCorrect == nil {
		return nil, fmt.Errorf("is_correct is required")
	}
	if in.ResponseTimeMS < 0 {
		return nil, fmt.Errorf("response_time_ms must be non-negative")
	}

	now := time.Now().UTC()
	correct := *in.IsCorrect

	var out *domain.QuestionArm
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		arm, err := s.questionArms.GetForUpdate(ctx, tx, userID, in.QuestionID)
		if err != nil {
			return fmt.Errorf("get question arm: %w", err)
		}
		if arm == nil {
			arm, err = s.newQuestionArm(ctx, tx, userID, in.QuestionID, now)
			if err != nil {
				return err
			}
		}

		if err := applyQuestionObservation(arm, correct, in.ResponseTimeMS, now); err != nil {
			return err
		}
		if err := s.questionArms.Save(ctx, tx, arm); err != nil {
			return fmt.Errorf("save question arm: %w", err)
		}

		if in.Topic != "" && in.KnowledgeType != "" {
			topicKey := domain.TopicKey(in.Topic, in.KnowledgeType)
			topicArm, err := s.topicArms.GetForUpdate(ctx, tx, userID, topicKey)
			if err != nil {
				return fmt.Errorf("get topic arm: %w", err)
			}
			if topicArm == nil {
				topicArm = &domain.TopicArm{
					ID:            uuid.New(),
					UserID:        userID,
					TopicKey:      topicKey,
					Course:        in.Course,
					Topic:         in.Topic,
					KnowledgeType: in.KnowledgeType,
					Alpha:         1,
					Beta:          1,
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				if err := s.topicArms.Create(ctx, tx, topicArm); err != nil {
					return fmt.Errorf("create topic arm: %w", err)
				}
			}
			if err := applyTopicObservation(topicArm, correct, in.ResponseTimeMS, now); err != nil {
				return err
			}
			if err := s.topicArms.Save(ctx, tx, topicArm); err != nil {
				return fmt.Errorf("save topic arm: %w", err)
			}
		}

		ev := &domain.ResponseEvent{
			ID:             uuid.New(),
			UserID:         userID,
			QuestionID:     in.QuestionID,
			IsCorrect:      correct,
			ResponseTimeMS: in.ResponseTimeMS,
			UserConfidence: in.UserConfidence,
			SessionID:      in.SessionID,
			Course:         in.Course,
			Topic:          in.Topic,
			KnowledgeType:  in.KnowledgeType,
			CreatedAt:      now,
		}
		if in.UserAnswer != "" {
			ev.UserAnswer = &in.UserAnswer
		}
		if err := s.eventLog.Append(ctx, tx, ev); err != nil {
			return fmt.Errorf("append response event: %w", err)
		}

		out = arm
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// newQuestionArm creates the lazily-initialized arm for a first contact,
// seeding the Beta prior from the question's current computed difficulty
// when metrics exist.
func (s *banditService) newQuestionArm(ctx context.Context, tx *gorm.DB, userID uuid.UUID, questionID string, now time.Time) (*domain.QuestionArm, error) {
	difficulty := domain.DifficultyUnknown
	if s.metricsRepo != nil {
		m, err := s.metricsRepo.GetActive(ctx, tx, questionID)
		if err != nil {
			return nil, fmt.Errorf("lookup question difficulty: %w", err)
		}
		if m != nil && m.ComputedDifficulty != "" {
			difficulty = m.ComputedDifficulty
		}
	}

	alpha, beta := PriorFor(difficulty)
	arm := &domain.QuestionArm{
		ID:             uuid.New(),
		UserID:         userID,
		QuestionID:     questionID,
		Difficulty:     difficulty,
		Alpha:          alpha,
		Beta:           beta,
		UserConfidence: alpha / (alpha + beta),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.questionArms.Create(ctx, tx, arm); err != nil {
		return nil, fmt.Errorf("create question arm: %w", err)
	}
	return arm, nil
}

func (s *banditService) RankQuestionArms(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.QuestionArm, error) {
	arms, err := s.questionArms.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(arms))
	draws := make([]float64, len(arms))
	s.mu.Lock()
	for i, a := range arms {
		keys[i] = a.QuestionID
		draws[i] = SampleBeta(s.rng, a.Alpha, a.Beta)
	}
	s.mu.Unlock()

	order := rankBySample(keys, draws)
	ranked := make([]*domain.QuestionArm, 0, len(order))
	for _, idx := range order {
		ranked = append(ranked, arms[idx])
	}
	return truncateQuestionArms(ranked, limit), nil
}

func (s *banditService) RankTopicArms(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.TopicArm, error) {
	arms, err := s.topicArms.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(arms))
	draws := make([]float64, len(arms))
	s.mu.Lock()
	for i, a := range arms {
		keys[i] = a.TopicKey
		draws[i] = SampleBeta(s.rng, a.Alpha, a.Beta)
	}
	s.mu.Unlock()

	order := rankBySample(keys, draws)
	ranked := make([]*domain.TopicArm, 0, len(order))
	for _, idx := range order {
		ranked = append(ranked, arms[idx])
	}
	return truncateTopicArms(ranked, limit), nil
}

// rankBySample orders arm indices by posterior draw descending; exact
// ties break by key ascending so selection is reproducible.
func rankBySample(keys []string, draws []float64) []int {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if draws[ia] != draws[ib] {
			return draws[ia] > draws[ib]
		}
		return keys[ia] < keys[ib]
	})
	return order
}

func truncateQuestionArms(arms []*domain.QuestionArm, limit int) []*domain.QuestionArm {
	if limit > 0 && len(arms) > limit {
		return arms[:limit]
	}
	return arms
}

func truncateTopicArms(arms []*domain.TopicArm, limit int) []*domain.TopicArm {
	if limit > 0 && len(arms) > limit {
		return arms[:limit]
	}
	return arms
}

// SampleBeta draws from Beta(alpha, beta) as Ga/(Ga+Gb) with two Gamma
// draws.
func SampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	if alpha <= 0 || beta <= 0 {
		return 0.5
	}
	ga := sampleGamma(rng, alpha)
	gb := sampleGamma(rng, beta)
	if ga+gb == 0 {
		return 0.5
	}
	return ga / (ga + gb)
}

// sampleGamma draws from Gamma(shape, 1) via Marsaglia-Tsang; shapes
// below 1 use the boost Gamma(a) = Gamma(a+1) * U^(1/a).
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if u > 0 && math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
