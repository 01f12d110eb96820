package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mabquiz/mabquiz-backend/internal/http/response"
	"github.com/mabquiz/mabquiz-backend/internal/requestdata"
)

const (
	userIDHeader    = "X-User-ID"
	sessionIDHeader = "X-Session-ID"
)

// Identity extracts the already-verified caller identity from the
// gateway-set headers and installs it in the request context. Token
// verification happens upstream; a request without a valid user id never
// reaches the protected routes.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(userIDHeader))
		if raw == "" {
			response.RespondError(c, http.StatusUnauthorized, "missing_user_id", fmt.Errorf("missing %s header", userIDHeader))
			c.Abort()
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusUnauthorized, "invalid_user_id", fmt.Errorf("invalid %s header", userIDHeader))
			c.Abort()
			return
		}

		rd := &requestdata.RequestData{
			UserID:    userID,
			SessionID: strings.TrimSpace(c.GetHeader(sessionIDHeader)),
		}
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}
