package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SubscriberHeader carries the caller's subscriber identity.
const SubscriberHeader = "X-Subscription-Id"

// Subscriber resolves the caller's identity. Requests without a
// subscription id are served anonymously on the free tier, keyed by
// client IP so each caller gets their own free allowance.
func Subscriber() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(SubscriberHeader))

		if id == "" {
			c.Set(CtxSubscriberID, "anon:"+c.ClientIP())
			c.Set(CtxAnonymous, true)
		} else {
			c.Set(CtxSubscriberID, id)
			c.Set(CtxAnonymous, false)
		}

		c.Next()
	}
}
