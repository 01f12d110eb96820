package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	redisclient "github.com/mabquiz/mabquiz-backend/internal/clients/redis"
	"github.com/mabquiz/mabquiz-backend/internal/data/repos"
	"github.com/mabquiz/mabquiz-backend/internal/data/repos/events"
	"github.com/mabquiz/mabquiz-backend/internal/data/repos/metrics"
	"github.com/mabquiz/mabquiz-backend/internal/domain"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

const (
	wilsonZ = 1.96

	// defaultAvgResponseTimeMS stands in when the window has no usable
	// response times.
	defaultAvgResponseTimeMS = 30000

	batchConcurrency = 8
)

// expectedResponseTimes is the per-knowledge-type expected answer time
// in seconds, used to normalize the time factor of the composite score.
var expectedResponseTimes = map[string]float64{
	"terminology":      15,
	"dosage":           30,
	"side_effect":      25,
	"pharmacodynamics": 45,
	"pharmacokinetics": 40,
}

const defaultExpectedResponseTime = 30

// GlobalStats is the reporting rollup over the whole response log.
type GlobalStats struct {
	WindowDays        int                        `json:"window_days"`
	TotalQuestions    int64                      `json:"total_questions"`
	TotalUsers        int64                      `json:"total_users"`
	TotalResponses    int64                      `json:"total_responses"`
	GlobalSuccessRate float64                    `json:"global_success_rate"`
	AvgResponseTime   float64                    `json:"avg_response_time"` // seconds
	ActiveDays        int64                      `json:"active_days"`
	Distribution      []metrics.DifficultyBucket `json:"difficulty_distribution"`
	ComputedAt        time.Time                  `json:"computed_at"`
}

// BatchResult reports one batch recomputation: which questions got fresh
// metrics and which were skipped (insufficient data or a per-item
// failure).
type BatchResult struct {
	Calculated []string `json:"calculated"`
	Skipped    []string `json:"skipped"`
	WindowDays int      `json:"window_days"`
}

// MetricsBatch pairs the found metrics with the ids that had none fresh
// enough.
type MetricsBatch struct {
	Found   map[string]*domain.QuestionMetrics `json:"found"`
	Missing []string                           `json:"missing"`
}

type DifficultyService interface {
	// CalculateQuestionDifficulty computes metrics for one question
	// without persisting them. Returns (nil, nil) when the window holds
	// fewer than the minimum sample size.
	CalculateQuestionDifficulty(ctx context.Context, questionID string, windowDays int) (*domain.QuestionMetrics, error)
	BatchCalculate(ctx context.Context, questionIDs []string, windowDays int) (*BatchResult, error)
	GetMetrics(ctx context.Context, questionID string) (*domain.QuestionMetrics, error)
	GetMetricsBatch(ctx context.Context, questionIDs []string, maxAgeDays int) (*MetricsBatch, error)
	GlobalStats(ctx context.Context, windowDays int) (*GlobalStats, error)
	SubmitResponse(ctx context.Context, userID uuid.UUID, in ResponseInput) error
	// CleanupMetrics deactivates metrics not recomputed within maxAgeDays.
	// Returns how many rows were deactivated.
	CleanupMetrics(ctx context.Context, maxAgeDays int) (int64, error)
}

type difficultyService struct {
	db            *gorm.DB
	log           *logger.Logger
	eventLog      repos.ResponseEventRepo
	metricsRepo   repos.QuestionMetricsRepo
	cache         redisclient.MetricsCache
	minSampleSize int
}

func NewDifficultyService(
	db *gorm.DB,
	baseLog *logger.Logger,
	eventLog repos.ResponseEventRepo,
	metricsRepo repos.QuestionMetricsRepo,
	cache redisclient.MetricsCache,
	minSampleSize int,
) DifficultyService {
	if minSampleSize <= 0 {
		minSampleSize = 10
	}
	if cache == nil {
		cache = redisclient.NewNoopMetricsCache(baseLog)
	}
	return &difficultyService{
		db:            db,
		log:           baseLog.With("service", "DifficultyService"),
		eventLog:      eventLog,
		metricsRepo:   metricsRepo,
		cache:         cache,
		minSampleSize: minSampleSize,
	}
}

func (s *difficultyService) CalculateQuestionDifficulty(ctx context.Context, questionID string, windowDays int) (*domain.QuestionMetrics, error) {
	if questionID == "" {
		return nil, fmt.Errorf("question_id is required")
	}
	since := windowStart(windowDays)

	agg, err := s.eventLog.AggregateByQuestion(ctx, nil, questionID, since)
	if err != nil {
		return nil, fmt.Errorf("aggregate responses for %q: %w", questionID, err)
	}
	if agg == nil || agg.TotalAttempts < int64(s.minSampleSize) {
		return nil, nil
	}

	activeUsers, err := s.eventLog.CountActiveUsers(ctx, nil, since)
	if err != nil {
		return nil, fmt.Errorf("count active users: %w", err)
	}

	return buildMetrics(questionID, agg, activeUsers, time.Now().UTC()), nil
}

// buildMetrics derives the full metrics row from a windowed aggregate.
// Pure, so the statistics are testable without a database.
func buildMetrics(questionID string, agg *events.QuestionAggregate, activeUsers int64, now time.Time) *domain.QuestionMetrics {
	successRate := float64(agg.TotalCorrect) / float64(agg.TotalAttempts)

	avgMS := float64(defaultAvgResponseTimeMS)
	if agg.AvgResponseTimeMS != nil {
		avgMS = *agg.AvgResponseTimeMS
	}
	avgSeconds := avgMS / 1000

	if activeUsers < 1 {
		activeUsers = 1
	}
	reachRate := float64(agg.UniqueUsers) / float64(activeUsers)

	lower, upper := WilsonInterval(agg.TotalCorrect, agg.TotalAttempts, wilsonZ)

	expected := ExpectedResponseTime(KnowledgeTypeFromQuestionID(questionID))
	score := CompositeScore(successRate, reachRate, avgSeconds, expected)

	return &domain.QuestionMetrics{
		ID:                  uuid.New(),
		QuestionID:          questionID,
		GlobalSuccessRate:   successRate,
		TotalAttempts:       agg.TotalAttempts,
		AverageResponseTime: avgSeconds,
		ReachRate:           reachRate,
		DifficultyScore:     score,
		ComputedDifficulty:  CategorizeScore(score),
		ConfidenceLower:     lower,
		ConfidenceUpper:     upper,
		LastComputed:        now,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// WilsonInterval is the Wilson score interval for a binomial proportion.
func WilsonInterval(successes, total int64, z float64) (lower, upper float64) {
	if total <= 0 {
		return 0, 1
	}
	n := float64(total)
	p := float64(successes) / n
	z2 := z * z

	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	margin := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denom

	lower = center - margin
	upper = center + margin
	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}
	return lower, upper
}

// CompositeScore blends failure rate, reach penalty, and response-time
// pressure into one [0,1] difficulty score.
func CompositeScore(successRate, reachRate, avgSeconds, expectedSeconds float64) float64 {
	reachPenalty := math.Max(0, (0.5-reachRate)*2)

	if expectedSeconds <= 0 {
		expectedSeconds = defaultExpectedResponseTime
	}
	timeFactor := math.Min(1, avgSeconds/expectedSeconds)

	score := 0.6*(1-successRate) + 0.25*reachPenalty + 0.15*(timeFactor-0.5)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// CategorizeScore maps the composite score to a difficulty category.
func CategorizeScore(score float64) string {
	switch {
	case score <= 0.3:
		return domain.DifficultyBeginner
	case score <= 0.7:
		return domain.DifficultyIntermediate
	default:
		return domain.DifficultyAdvanced
	}
}

// knowledgeTypeHints maps id fragments to knowledge types, checked in
// order so the more specific fragments win. "term" goes last: it is a
// substring of nothing above but matches loosely itself.
var knowledgeTypeHints = []struct {
	fragment string
	kt       string
}{
	{"dosage", "dosage"},
	{"dose", "dosage"},
	{"side_effect", "side_effect"},
	{"adverse", "side_effect"},
	{"pharmacodynamics", "pharmacodynamics"},
	{"mechanism", "pharmacodynamics"},
	{"pharmacokinetics", "pharmacokinetics"},
	{"absorption", "pharmacokinetics"},
	{"term", "terminology"},
}

// KnowledgeTypeFromQuestionID guesses the knowledge type from the
// question id's naming convention. Unknown ids fall back to the default
// expected time.
func KnowledgeTypeFromQuestionID(questionID string) string {
	id := strings.ToLower(questionID)
	for _, h := range knowledgeTypeHints {
		if strings.Contains(id, h.fragment) {
			return h.kt
		}
	}
	return ""
}

// ExpectedResponseTime is the expected answer time in seconds for a
// knowledge type.
func ExpectedResponseTime(knowledgeType string) float64 {
	if t, ok := expectedResponseTimes[knowledgeType]; ok {
		return t
	}
	return defaultExpectedResponseTime
}

// BatchCalculate recomputes and upserts metrics for the given questions,
// or for every question meeting the minimum sample size when no ids are
// given. Per-question failures are logged and skipped; the batch itself
// only fails on infrastructure errors.
func (s *difficultyService) BatchCalculate(ctx context.Context, questionIDs []string, windowDays int) (*BatchResult, error) {
	since := windowStart(windowDays)

	ids := questionIDs
	if len(ids) == 0 {
		var err error
		ids, err = s.eventLog.ListEligibleQuestionIDs(ctx, nil, since, s.minSampleSize)
		if err != nil {
			return nil, fmt.Errorf("discover eligible questions: %w", err)
		}
	}

	result := &BatchResult{
		Calculated: make([]string, 0, len(ids)),
		Skipped:    make([]string, 0),
		WindowDays: windowDays,
	}
	if len(ids) == 0 {
		return result, nil
	}

	activeUsers, err := s.eventLog.CountActiveUsers(ctx, nil, since)
	if err != nil {
		return nil, fmt.Errorf("count active users: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for _, id := range ids {
		questionID := id
		g.Go(func() error {
			m, err := s.computeOne(gctx, questionID, since, activeUsers)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn("difficulty calculation failed", "question_id", questionID, "error", err.Error())
				result.Skipped = append(result.Skipped, questionID)
				return nil
			}
			if m == nil {
				result.Skipped = append(result.Skipped, questionID)
				return nil
			}
			result.Calculated = append(result.Calculated, questionID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Info("difficulty batch completed",
		"window_days", windowDays,
		"calculated", len(result.Calculated),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

func (s *difficultyService) computeOne(ctx context.Context, questionID string, since time.Time, activeUsers int64) (*domain.QuestionMetrics, error) {
	agg, err := s.eventLog.AggregateByQuestion(ctx, nil, questionID, since)
	if err != nil {
		return nil, err
	}
	if agg == nil || agg.TotalAttempts < int64(s.minSampleSize) {
		return nil, nil
	}

	m := buildMetrics(questionID, agg, activeUsers, time.Now().UTC())
	if err := s.metricsRepo.Upsert(ctx, nil, m); err != nil {
		return nil, err
	}
	s.cache.SetMetrics(ctx, m)
	return m, nil
}

func (s *difficultyService) CleanupMetrics(ctx context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = 90
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	deactivated, err := s.metricsRepo.DeactivateStale(ctx, nil, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale metrics: %w", err)
	}

	s.log.Info("metrics cleanup completed",
		"max_age_days", maxAgeDays,
		"deactivated", deactivated,
	)
	return deactivated, nil
}

func (s *difficultyService) GetMetrics(ctx context.Context, questionID string) (*domain.QuestionMetrics, error) {
	if m, ok := s.cache.GetMetrics(ctx, questionID); ok {
		return m, nil
	}
	m, err := s.metricsRepo.GetActive(ctx, nil, questionID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		s.cache.SetMetrics(ctx, m)
	}
	return m, nil
}

func (s *difficultyService) GetMetricsBatch(ctx context.Context, questionIDs []string, maxAgeDays int) (*MetricsBatch, error) {
	out := &MetricsBatch{
		Found:   make(map[string]*domain.QuestionMetrics, len(questionIDs)),
		Missing: make([]string, 0),
	}
	if len(questionIDs) == 0 {
		return out, nil
	}

	var computedAfter *time.Time
	if maxAgeDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
		computedAfter = &cutoff
	}

	rows, err := s.metricsRepo.ListActiveByIDs(ctx, nil, questionIDs, computedAfter)
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		out.Found[m.QuestionID] = m
	}
	for _, id := range questionIDs {
		if _, ok := out.Found[id]; !ok {
			out.Missing = append(out.Missing, id)
		}
	}
	return out, nil
}

func (s *difficultyService) GlobalStats(ctx context.Context, windowDays int) (*GlobalStats, error) {
	var cached GlobalStats
	if s.cache.GetGlobalStats(ctx, windowDays, &cached) {
		return &cached, nil
	}

	since := windowStart(windowDays)
	agg, err := s.eventLog.GlobalAggregate(ctx, nil, since)
	if err != nil {
		return nil, fmt.Errorf("global aggregate: %w", err)
	}
	dist, err := s.metricsRepo.DifficultyDistribution(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("difficulty distribution: %w", err)
	}

	stats := &GlobalStats{
		WindowDays:     windowDays,
		TotalQuestions: agg.TotalQuestions,
		TotalUsers:     agg.TotalUsers,
		TotalResponses: agg.TotalResponses,
		ActiveDays:     agg.ActiveDays,
		Distribution:   dist,
		ComputedAt:     time.Now().UTC(),
	}
	if agg.GlobalSuccessRate != nil {
		stats.GlobalSuccessRate = *agg.GlobalSuccessRate
	}
	if agg.AvgResponseTimeMS != nil {
		stats.AvgResponseTime = *agg.AvgResponseTimeMS / 1000
	}

	s.cache.SetGlobalStats(ctx, windowDays, stats)
	return stats, nil
}

// SubmitResponse appends one event to the response log without touching
// any bandit arm — the reporting-only ingestion path.
func (s *difficultyService) SubmitResponse(ctx context.Context, userID uuid.UUID, in ResponseInput) error {
	if in.QuestionID == "" {
		return fmt.Errorf("question_id is required")
	}
	if in.IsCorrect == nil {
		return fmt.Errorf("is_correct is required")
	}
	if in.ResponseTimeMS < 0 {
		return fmt.Errorf("response_time_ms must be non-negative")
	}

	ev := &domain.ResponseEvent{
		ID:             uuid.New(),
		UserID:         userID,
		QuestionID:     in.QuestionID,
		IsCorrect:      *in.IsCorrect,
		ResponseTimeMS: in.ResponseTimeMS,
		UserConfidence: in.UserConfidence,
		SessionID:      in.SessionID,
		Course:         in.Course,
		Topic:          in.Topic,
		KnowledgeType:  in.KnowledgeType,
		CreatedAt:      time.Now().UTC(),
	}
	if in.UserAnswer != "" {
		ev.UserAnswer = &in.UserAnswer
	}
	return s.eventLog.Append(ctx, nil, ev)
}

func windowStart(windowDays int) time.Time {
	if windowDays <= 0 {
		windowDays = 30
	}
	return time.Now().UTC().AddDate(0, 0, -windowDays)
}
