package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys shared across the middleware chain.
const (
	CtxRequestID    = "request_id"
	CtxSubscriberID = "subscriber_id"
	CtxAnonymous    = "anonymous"
	CtxTier         = "admission_tier"
	CtxPeriodKey    = "admission_period"
	CtxAdmitted     = "admission_admitted"
	CtxDenyReason   = "admission_reason"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(CtxRequestID, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}
