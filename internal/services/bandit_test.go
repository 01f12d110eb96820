package services

import (
	"math/rand"
	"testing"
	"time"

	"github.com/mabquiz/mabquiz-backend/internal/domain"
)

func TestPriorFor(t *testing.T) {
	cases := []struct {
		difficulty string
		alpha      float64
		beta       float64
	}{
		{domain.DifficultyBeginner, 7, 3},
		{domain.DifficultyIntermediate, 5, 5},
		{domain.DifficultyAdvanced, 3, 7},
		{domain.DifficultyUnknown, 1, 1},
		{"", 1, 1},
		{"weird", 1, 1},
	}
	for _, c := range cases {
		alpha, beta := PriorFor(c.difficulty)
		if alpha != c.alpha || beta != c.beta {
			t.Fatalf("PriorFor(%q) = (%v, %v), want (%v, %v)", c.difficulty, alpha, beta, c.alpha, c.beta)
		}
	}
}

func TestApplyQuestionObservation(t *testing.T) {
	now := time.Now().UTC()
	arm := &domain.QuestionArm{
		Difficulty: domain.DifficultyIntermediate,
		Alpha:      5,
		Beta:       5,
	}

	if err := applyQuestionObservation(arm, true, 1200, now); err != nil {
		t.Fatalf("applyQuestionObservation: %v", err)
	}
	if arm.Attempts != 1 || arm.Successes != 1 || arm.Failures != 0 {
		t.Fatalf("counters after success: attempts=%d successes=%d failures=%d", arm.Attempts, arm.Successes, arm.Failures)
	}
	if arm.Alpha != 6 || arm.Beta != 5 {
		t.Fatalf("posterior after success: alpha=%v beta=%v", arm.Alpha, arm.Beta)
	}

	if err := applyQuestionObservation(arm, false, 800, now); err != nil {
		t.Fatalf("applyQuestionObservation: %v", err)
	}
	if arm.Attempts != arm.Successes+arm.Failures {
		t.Fatalf("invariant broken: attempts=%d successes=%d failures=%d", arm.Attempts, arm.Successes, arm.Failures)
	}
	if arm.TotalResponseTimeMS != 2000 {
		t.Fatalf("total response time = %d, want 2000", arm.TotalResponseTimeMS)
	}

	wantConfidence := arm.Alpha / (arm.Alpha + arm.Beta)
	if arm.UserConfidence != wantConfidence {
		t.Fatalf("user confidence = %v, want posterior mean %v", arm.UserConfidence, wantConfidence)
	}
	if arm.LastAttempted == nil || !arm.LastAttempted.Equal(now) {
		t.Fatalf("last attempted not set to observation time")
	}
}

func TestApplyObservationNilArm(t *testing.T) {
	if err := applyQuestionObservation(nil, true, 0, time.Now()); err == nil {
		t.Fatal("expected error for nil question arm")
	}
	if err := applyTopicObservation(nil, true, 0, time.Now()); err == nil {
		t.Fatal("expected error for nil topic arm")
	}
}

func TestSampleBetaBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	shapes := []struct{ alpha, beta float64 }{
		{1, 1}, {0.5, 0.5}, {7, 3}, {3, 7}, {50, 2}, {0.2, 5},
	}
	for _, s := range shapes {
		for i := 0; i < 2000; i++ {
			v := SampleBeta(rng, s.alpha, s.beta)
			if v < 0 || v > 1 {
				t.Fatalf("SampleBeta(%v, %v) = %v out of [0,1]", s.alpha, s.beta, v)
			}
		}
	}
}

func TestSampleBetaSkew(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = 5000

	mean := func(alpha, beta float64) float64 {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += SampleBeta(rng, alpha, beta)
		}
		return sum / n
	}

	easy := mean(7, 3)
	hard := mean(3, 7)
	if easy <= hard {
		t.Fatalf("Beta(7,3) sample mean %v should exceed Beta(3,7) sample mean %v", easy, hard)
	}
	if easy < 0.6 || easy > 0.8 {
		t.Fatalf("Beta(7,3) sample mean %v far from 0.7", easy)
	}
}

func TestSampleBetaDegenerate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if v := SampleBeta(rng, 0, 1); v != 0.5 {
		t.Fatalf("SampleBeta with alpha=0 = %v, want 0.5 fallback", v)
	}
	if v := SampleBeta(rng, 1, -1); v != 0.5 {
		t.Fatalf("SampleBeta with beta<0 = %v, want 0.5 fallback", v)
	}
}

func TestRankBySampleOrdering(t *testing.T) {
	keys := []string{"q3", "q1", "q2"}
	draws := []float64{0.2, 0.9, 0.5}

	order := rankBySample(keys, draws)
	got := []string{keys[order[0]], keys[order[1]], keys[order[2]]}
	want := []string{"q1", "q2", "q3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank order = %v, want %v", got, want)
		}
	}
}

func TestRankBySampleTieBreak(t *testing.T) {
	keys := []string{"qb", "qa", "qc"}
	draws := []float64{0.5, 0.5, 0.5}

	order := rankBySample(keys, draws)
	got := []string{keys[order[0]], keys[order[1]], keys[order[2]]}
	want := []string{"qa", "qb", "qc"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie-break order = %v, want key-ascending %v", got, want)
		}
	}
}

func TestTruncateArms(t *testing.T) {
	arms := []*domain.QuestionArm{{QuestionID: "a"}, {QuestionID: "b"}, {QuestionID: "c"}}
	if got := truncateQuestionArms(arms, 2); len(got) != 2 {
		t.Fatalf("limit 2 returned %d arms", len(got))
	}
	if got := truncateQuestionArms(arms, 0); len(got) != 3 {
		t.Fatalf("limit 0 should return all, got %d", len(got))
	}
	if got := truncateQuestionArms(arms, 10); len(got) != 3 {
		t.Fatalf("limit past length should return all, got %d", len(got))
	}
}
