package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mabquiz/mabquiz-backend/internal/http/response"
	"github.com/mabquiz/mabquiz-backend/internal/requestdata"
	"github.com/mabquiz/mabquiz-backend/internal/services"
)

const defaultRankLimit = 10

type BanditHandler struct {
	bandit services.BanditService
}

func NewBanditHandler(bandit services.BanditService) *BanditHandler {
	return &BanditHandler{bandit: bandit}
}

// POST /api/bandit/responses
func (h *BanditHandler) RecordResponse(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "missing_identity", fmt.Errorf("no request identity"))
		return
	}

	var in services.ResponseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_response", err)
		return
	}
	if in.SessionID == "" {
		in.SessionID = rd.SessionID
	}

	arm, err := h.bandit.RecordResponse(c.Request.Context(), rd.UserID, in)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "record_response_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"arm": arm})
}

// GET /api/bandit/next?kind=question|topic&limit=N
func (h *BanditHandler) Next(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "missing_identity", fmt.Errorf("no request identity"))
		return
	}

	limit := defaultRankLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = n
	}

	kind := c.DefaultQuery("kind", "question")
	switch kind {
	case "question":
		arms, err := h.bandit.RankQuestionArms(c.Request.Context(), rd.UserID, limit)
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "rank_failed", err)
			return
		}
		response.RespondOK(c, gin.H{"kind": kind, "arms": arms})
	case "topic":
		arms, err := h.bandit.RankTopicArms(c.Request.Context(), rd.UserID, limit)
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "rank_failed", err)
			return
		}
		response.RespondOK(c, gin.H{"kind": kind, "arms": arms})
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_kind", fmt.Errorf("kind must be question or topic"))
	}
}
