package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mabquiz/mabquiz-backend/internal/requestdata"
	"github.com/mabquiz/mabquiz-backend/internal/services"
)

// stubSyncService returns canned results so handler tests can exercise
// status-code mapping without a database.
type stubSyncService struct {
	syncErr error
}

func (s *stubSyncService) Sync(ctx context.Context, userID uuid.UUID, req services.SyncRequest) (*services.SyncResponse, error) {
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	return &services.SyncResponse{ServerTime: 1}, nil
}

func (s *stubSyncService) Status(ctx context.Context, userID uuid.UUID) (*services.SyncStatus, error) {
	return &services.SyncStatus{UserID: userID}, nil
}

func newSyncRouter(svc services.SyncService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		rd := &requestdata.RequestData{UserID: uuid.New()}
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Next()
	})
	h := NewSyncHandler(svc)
	r.POST("/api/sync/mab", h.Sync)
	return r
}

func postSync(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sync/mab", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSyncHandlerRejectsInvalidBatch(t *testing.T) {
	r := newSyncRouter(&stubSyncService{
		syncErr: fmt.Errorf("reject: %w", services.ErrInvalidSyncRequest),
	})

	w := postSync(t, r, `{"last_sync_time":0}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

// A storage failure whose message happens to look like a validation
// message must still surface as a server error.
func TestSyncHandlerStorageErrorIsNotBadRequest(t *testing.T) {
	r := newSyncRouter(&stubSyncService{
		syncErr: fmt.Errorf(`pq: null value in column "question_id" is required`),
	})

	w := postSync(t, r, `{"last_sync_time":0}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestSyncHandlerOK(t *testing.T) {
	r := newSyncRouter(&stubSyncService{})

	w := postSync(t, r, `{"last_sync_time":0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
