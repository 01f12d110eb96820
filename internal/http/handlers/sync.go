package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mabquiz/mabquiz-backend/internal/http/response"
	"github.com/mabquiz/mabquiz-backend/internal/requestdata"
	"github.com/mabquiz/mabquiz-backend/internal/services"
)

type SyncHandler struct {
	sync services.SyncService
}

func NewSyncHandler(sync services.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// POST /api/sync/mab
func (h *SyncHandler) Sync(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "missing_identity", fmt.Errorf("no request identity"))
		return
	}

	var req services.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_sync_request", err)
		return
	}

	resp, err := h.sync.Sync(c.Request.Context(), rd.UserID, req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSyncRequest) {
			response.RespondError(c, http.StatusBadRequest, "invalid_sync_request", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "sync_failed", err)
		return
	}
	response.RespondOK(c, resp)
}

// GET /api/sync/mab/status
func (h *SyncHandler) Status(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondError(c, http.StatusUnauthorized, "missing_identity", fmt.Errorf("no request identity"))
		return
	}

	status, err := h.sync.Status(c.Request.Context(), rd.UserID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "sync_status_failed", err)
		return
	}
	response.RespondOK(c, status)
}
