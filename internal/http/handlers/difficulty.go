package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mabquiz/mabquiz-backend/internal/http/response"
	"github.com/mabquiz/mabquiz-backend/internal/services"
)

type DifficultyHandler struct {
	difficulty services.DifficultyService
	jobs       services.JobService
	windowDays int
}

func NewDifficultyHandler(difficulty services.DifficultyService, jobs services.JobService, windowDays int) *DifficultyHandler {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &DifficultyHandler{
		difficulty: difficulty,
		jobs:       jobs,
		windowDays: windowDays,
	}
}

// GET /api/difficulty/calculate/:question_id
func (h *DifficultyHandler) CalculateSingle(c *gin.Context) {
	questionID := c.Param("question_id")

	windowDays, ok := h.windowDaysQuery(c)
	if !ok {
		return
	}

	m, err := h.difficulty.CalculateQuestionDifficulty(c.Request.Context(), questionID, windowDays)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "calculate_failed", err)
		return
	}
	if m == nil {
		response.RespondNotFound(c, "insufficient_data", fmt.Errorf("not enough responses for question %s", questionID))
		return
	}
	response.RespondOK(c, gin.H{"metrics": m})
}

type batchCalculateRequest struct {
	QuestionIDs []string `json:"question_ids,omitempty"`
	WindowDays  int      `json:"window_days,omitempty"`
}

// POST /api/difficulty/calculate/batch
//
// Fire-and-forget: enqueues a recompute job and returns its id.
func (h *DifficultyHandler) CalculateBatch(c *gin.Context) {
	var req batchCalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_batch_request", err)
		return
	}
	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = h.windowDays
	}

	job, err := h.jobs.EnqueueDifficultyRecompute(c.Request.Context(), req.QuestionIDs, windowDays)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"job_id": job.ID, "status": job.Status})
}

// GET /api/difficulty/metrics/:question_id
func (h *DifficultyHandler) GetMetrics(c *gin.Context) {
	questionID := c.Param("question_id")

	m, err := h.difficulty.GetMetrics(c.Request.Context(), questionID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_metrics_failed", err)
		return
	}
	if m == nil {
		response.RespondNotFound(c, "metrics_not_found", fmt.Errorf("no metrics for question %s", questionID))
		return
	}
	response.RespondOK(c, gin.H{"metrics": m})
}

// GET /api/difficulty/metrics/batch?question_ids=a,b,c&max_age_days=N
func (h *DifficultyHandler) GetMetricsBatch(c *gin.Context) {
	ids := splitIDs(c.Query("question_ids"))
	if len(ids) == 0 {
		response.RespondError(c, http.StatusBadRequest, "missing_question_ids", fmt.Errorf("question_ids is required"))
		return
	}

	maxAgeDays := 0
	if raw := c.Query("max_age_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_max_age_days", fmt.Errorf("max_age_days must be a non-negative integer"))
			return
		}
		maxAgeDays = n
	}

	batch, err := h.difficulty.GetMetricsBatch(c.Request.Context(), ids, maxAgeDays)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_metrics_batch_failed", err)
		return
	}
	response.RespondOK(c, batch)
}

type submitResponseRequest struct {
	UserID string `json:"user_id" binding:"required"`
	services.ResponseInput
}

// POST /api/difficulty/responses
//
// Reporting-only ingestion: appends to the response log without touching
// any bandit arm, so external surfaces can feed the calculator directly.
func (h *DifficultyHandler) SubmitResponse(c *gin.Context) {
	var req submitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_response", err)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}

	if err := h.difficulty.SubmitResponse(c.Request.Context(), userID, req.ResponseInput); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "submit_response_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"recorded": true})
}

// GET /api/difficulty/stats/global?window_days=N
func (h *DifficultyHandler) GlobalStats(c *gin.Context) {
	windowDays, ok := h.windowDaysQuery(c)
	if !ok {
		return
	}

	stats, err := h.difficulty.GlobalStats(c.Request.Context(), windowDays)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "global_stats_failed", err)
		return
	}
	response.RespondOK(c, stats)
}

func splitIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *DifficultyHandler) windowDaysQuery(c *gin.Context) (int, bool) {
	windowDays := h.windowDays
	if raw := c.Query("window_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_window_days", fmt.Errorf("window_days must be a positive integer"))
			return 0, false
		}
		windowDays = n
	}
	return windowDays, true
}
