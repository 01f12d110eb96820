package difficulty

import (
	"github.com/mabquiz/mabquiz-backend/internal/jobs/runtime"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
	"github.com/mabquiz/mabquiz-backend/internal/services"
)

// CleanupHandler runs one metrics_cleanup job: metrics whose last
// computation predates the retention window are deactivated so the
// active read paths stop serving them.
type CleanupHandler struct {
	log        *logger.Logger
	difficulty services.DifficultyService
}

func NewCleanupHandler(baseLog *logger.Logger, difficulty services.DifficultyService) *CleanupHandler {
	return &CleanupHandler{
		log:        baseLog.With("handler", "MetricsCleanup"),
		difficulty: difficulty,
	}
}

func (h *CleanupHandler) Type() string { return services.JobTypeMetricsCleanup }

func (h *CleanupHandler) Run(jc *runtime.Context) error {
	var payload services.MetricsCleanupPayload
	if err := jc.DecodePayload(&payload); err != nil {
		jc.Fail("decode_payload", err)
		return err
	}

	jc.Heartbeat()

	deactivated, err := h.difficulty.CleanupMetrics(jc.Ctx, payload.MaxAgeDays)
	if err != nil {
		jc.Fail("cleanup_metrics", err)
		return err
	}

	result := map[string]interface{}{
		"deactivated":  deactivated,
		"max_age_days": payload.MaxAgeDays,
	}
	if err := jc.Complete(result); err != nil {
		jc.Fail("persist_result", err)
		return err
	}
	return nil
}
