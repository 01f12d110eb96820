package difficulty

import (
	"github.com/mabquiz/mabquiz-backend/internal/jobs/runtime"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
	"github.com/mabquiz/mabquiz-backend/internal/services"
)

// RecomputeHandler runs one difficulty_recompute job: a windowed batch
// recalculation over the response log, upserting fresh metrics per
// question.
type RecomputeHandler struct {
	log        *logger.Logger
	difficulty services.DifficultyService
}

func NewRecomputeHandler(baseLog *logger.Logger, difficulty services.DifficultyService) *RecomputeHandler {
	return &RecomputeHandler{
		log:        baseLog.With("handler", "DifficultyRecompute"),
		difficulty: difficulty,
	}
}

func (h *RecomputeHandler) Type() string { return services.JobTypeDifficultyRecompute }

func (h *RecomputeHandler) Run(jc *runtime.Context) error {
	var payload services.DifficultyRecomputePayload
	if err := jc.DecodePayload(&payload); err != nil {
		jc.Fail("decode_payload", err)
		return err
	}

	jc.Heartbeat()

	result, err := h.difficulty.BatchCalculate(jc.Ctx, payload.QuestionIDs, payload.WindowDays)
	if err != nil {
		jc.Fail("batch_calculate", err)
		return err
	}

	if err := jc.Complete(result); err != nil {
		jc.Fail("persist_result", err)
		return err
	}
	return nil
}
