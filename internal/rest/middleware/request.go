package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/qmsuite/correlative/internal/types"
)

// RequestIDMiddleware propagates the caller's request id, or a fresh one, through the
// request context and the response headers
func RequestIDMiddleware(c *gin.Context) {
	requestID := c.GetHeader(types.HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	c.Request = c.Request.WithContext(types.SetRequestID(c.Request.Context(), requestID))

	c.Header(types.HeaderRequestID, requestID)
	c.Next()
}
