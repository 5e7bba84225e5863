package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/x402-gateway/internal/apierror"
	"github.com/aman-churiwal/x402-gateway/internal/catalog"
	"github.com/aman-churiwal/x402-gateway/internal/ledger"
	"github.com/aman-churiwal/x402-gateway/internal/metrics"
	"github.com/aman-churiwal/x402-gateway/internal/registry"
)

// Admission is the metered-route gate: resolve the caller's tier, then
// charge one unit against the ledger. Denials are 402 responses carrying
// the usage, the limit, and the pricing catalog so the caller can decide
// whether to upgrade. Quota is charged on admission; a later backend
// failure does not refund it.
func Admission(reg *registry.Registry, led *ledger.Ledger, cat *catalog.Catalog, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		subscriberID := c.GetString(CtxSubscriberID)

		status, err := reg.TierStatus(ctx, subscriberID)
		if err != nil {
			refuse(c, err)
			return
		}

		def, ok := cat.Lookup(status.Tier)
		if !ok {
			refuse(c, apierror.New(apierror.ReasonBackendUnavailable, "tier %s missing from catalog", status.Tier))
			return
		}

		decision, err := led.TryConsume(ctx, subscriberID, def, status.StartedAt, 1)
		if err != nil {
			refuse(c, err)
			return
		}

		c.Set(CtxTier, status.Tier.String())
		c.Set(CtxPeriodKey, decision.PeriodKey)
		c.Set(CtxAdmitted, decision.Admitted)

		c.Header("X-Quota-Tier", status.Tier.String())
		c.Header("X-Quota-Period", decision.PeriodKey)
		c.Header("X-Quota-Limit", fmt.Sprintf("%d", decision.Limit))
		c.Header("X-Quota-Remaining", fmt.Sprintf("%d", remaining(decision)))

		if !decision.Admitted {
			c.Set(CtxDenyReason, apierror.ReasonQuotaExceeded.String())
			metrics.AdmissionsTotal.WithLabelValues(status.Tier.String(), "denied").Inc()
			metrics.DenialsTotal.WithLabelValues(apierror.ReasonQuotaExceeded.String()).Inc()

			log.Info("quota exceeded",
				zap.String("subscriber", subscriberID),
				zap.String("tier", status.Tier.String()),
				zap.String("period", decision.PeriodKey),
				zap.Int64("limit", decision.Limit))

			c.JSON(apierror.ReasonQuotaExceeded.HTTPStatus(), gin.H{
				"error":  "Quota exceeded for the current billing period",
				"reason": apierror.ReasonQuotaExceeded.String(),
				"tier":   status.Tier.String(),
				"usage": gin.H{
					"used":   decision.Count,
					"limit":  decision.Limit,
					"period": decision.PeriodKey,
				},
				"pricing": cat.Pricing(),
			})
			c.Abort()
			return
		}

		metrics.AdmissionsTotal.WithLabelValues(status.Tier.String(), "admitted").Inc()
		c.Next()
	}
}

// refuse writes a classified refusal and aborts.
func refuse(c *gin.Context, err error) {
	reason := apierror.ReasonOf(err)
	c.Set(CtxDenyReason, reason.String())
	metrics.DenialsTotal.WithLabelValues(reason.String()).Inc()

	c.JSON(reason.HTTPStatus(), gin.H{
		"error":  err.Error(),
		"reason": reason.String(),
	})
	c.Abort()
}

func remaining(d ledger.Decision) int64 {
	if d.Limit < 0 {
		return -1
	}
	r := d.Limit - d.Count
	if r < 0 {
		r = 0
	}
	return r
}
