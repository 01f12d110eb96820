package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabquiz/mabquiz-backend/internal/data/repos/events"
	"github.com/mabquiz/mabquiz-backend/internal/domain"
)

func TestWilsonIntervalBracketsProportion(t *testing.T) {
	lower, upper := WilsonInterval(5, 10, wilsonZ)

	require.Less(t, lower, 0.5)
	require.Greater(t, upper, 0.5)
	assert.GreaterOrEqual(t, lower, 0.0)
	assert.LessOrEqual(t, upper, 1.0)
}

func TestWilsonIntervalNarrowsWithSampleSize(t *testing.T) {
	smallLower, smallUpper := WilsonInterval(5, 10, wilsonZ)
	largeLower, largeUpper := WilsonInterval(500, 1000, wilsonZ)

	assert.Less(t, largeUpper-largeLower, smallUpper-smallLower,
		"interval for n=1000 should be strictly narrower than for n=10")
}

func TestWilsonIntervalEdges(t *testing.T) {
	lower, upper := WilsonInterval(0, 10, wilsonZ)
	assert.Equal(t, 0.0, lower)
	assert.Greater(t, upper, 0.0)

	lower, upper = WilsonInterval(10, 10, wilsonZ)
	assert.Less(t, lower, 1.0)
	assert.Equal(t, 1.0, upper)

	lower, upper = WilsonInterval(0, 0, wilsonZ)
	assert.Equal(t, 0.0, lower)
	assert.Equal(t, 1.0, upper)
}

func TestCompositeScoreMonotonicInFailureRate(t *testing.T) {
	prev := -1.0
	for successRate := 1.0; successRate >= 0; successRate -= 0.1 {
		score := CompositeScore(successRate, 0.5, 20, 30)
		assert.GreaterOrEqual(t, score, prev,
			"score must be non-decreasing as success rate drops (successRate=%v)", successRate)
		prev = score
	}
}

func TestCompositeScoreClamped(t *testing.T) {
	// Everything easy: high success, wide reach, fast answers.
	assert.GreaterOrEqual(t, CompositeScore(1.0, 1.0, 1, 30), 0.0)
	// Everything hard: zero success, no reach, slow answers.
	assert.LessOrEqual(t, CompositeScore(0.0, 0.0, 120, 30), 1.0)
}

func TestCompositeScoreReachPenalty(t *testing.T) {
	narrow := CompositeScore(0.5, 0.1, 30, 30)
	wide := CompositeScore(0.5, 0.9, 30, 30)
	assert.Greater(t, narrow, wide, "low reach should raise the score")
}

func TestCategorizeScore(t *testing.T) {
	assert.Equal(t, domain.DifficultyBeginner, CategorizeScore(0.0))
	assert.Equal(t, domain.DifficultyBeginner, CategorizeScore(0.3))
	assert.Equal(t, domain.DifficultyIntermediate, CategorizeScore(0.31))
	assert.Equal(t, domain.DifficultyIntermediate, CategorizeScore(0.7))
	assert.Equal(t, domain.DifficultyAdvanced, CategorizeScore(0.71))
	assert.Equal(t, domain.DifficultyAdvanced, CategorizeScore(1.0))
}

func TestKnowledgeTypeFromQuestionID(t *testing.T) {
	assert.Equal(t, "terminology", KnowledgeTypeFromQuestionID("pharma_terminology_001"))
	assert.Equal(t, "terminology", KnowledgeTypeFromQuestionID("term_07"))
	assert.Equal(t, "dosage", KnowledgeTypeFromQuestionID("DOSAGE-42"))
	assert.Equal(t, "dosage", KnowledgeTypeFromQuestionID("warfarin_dose_05"))
	assert.Equal(t, "side_effect", KnowledgeTypeFromQuestionID("adverse_reaction_12"))
	assert.Equal(t, "pharmacodynamics", KnowledgeTypeFromQuestionID("mechanism_of_action_3"))
	assert.Equal(t, "pharmacokinetics", KnowledgeTypeFromQuestionID("q_pharmacokinetics_basics"))
	assert.Equal(t, "pharmacokinetics", KnowledgeTypeFromQuestionID("absorption_rate_2"))
	assert.Equal(t, "", KnowledgeTypeFromQuestionID("q123"))
}

func TestExpectedResponseTime(t *testing.T) {
	assert.Equal(t, 15.0, ExpectedResponseTime("terminology"))
	assert.Equal(t, 45.0, ExpectedResponseTime("pharmacodynamics"))
	assert.Equal(t, float64(defaultExpectedResponseTime), ExpectedResponseTime(""))
	assert.Equal(t, float64(defaultExpectedResponseTime), ExpectedResponseTime("nonsense"))
}

func TestBuildMetricsFifteenEventsNineCorrect(t *testing.T) {
	avg := 22000.0
	agg := &events.QuestionAggregate{
		QuestionID:        "q2",
		TotalAttempts:     15,
		TotalCorrect:      9,
		AvgResponseTimeMS: &avg,
		UniqueUsers:       8,
	}

	m := buildMetrics("q2", agg, 10, time.Now().UTC())
	require.NotNil(t, m)

	assert.InDelta(t, 0.6, m.GlobalSuccessRate, 1e-9)
	assert.Equal(t, int64(15), m.TotalAttempts)
	assert.InDelta(t, 22.0, m.AverageResponseTime, 1e-9)
	assert.InDelta(t, 0.8, m.ReachRate, 1e-9)
	assert.True(t, m.IsActive)

	wantScore := CompositeScore(0.6, 0.8, 22.0, ExpectedResponseTime(KnowledgeTypeFromQuestionID("q2")))
	assert.InDelta(t, wantScore, m.DifficultyScore, 1e-9)
	assert.Equal(t, CategorizeScore(wantScore), m.ComputedDifficulty)

	lower, upper := WilsonInterval(9, 15, wilsonZ)
	assert.InDelta(t, lower, m.ConfidenceLower, 1e-9)
	assert.InDelta(t, upper, m.ConfidenceUpper, 1e-9)
}

func TestBuildMetricsDefaultsResponseTime(t *testing.T) {
	agg := &events.QuestionAggregate{
		QuestionID:    "q9",
		TotalAttempts: 12,
		TotalCorrect:  6,
		UniqueUsers:   3,
	}

	m := buildMetrics("q9", agg, 0, time.Now().UTC())
	require.NotNil(t, m)

	assert.InDelta(t, 30.0, m.AverageResponseTime, 1e-9, "null average should default to 30s")
	// Active-user denominator floors at 1, never divides by zero.
	assert.InDelta(t, 3.0, m.ReachRate, 1e-9)
}
