package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/x402-gateway/internal/apierror"
	"github.com/aman-churiwal/x402-gateway/internal/catalog"
	"github.com/aman-churiwal/x402-gateway/internal/ledger"
	"github.com/aman-churiwal/x402-gateway/internal/metrics"
	"github.com/aman-churiwal/x402-gateway/internal/middleware"
	"github.com/aman-churiwal/x402-gateway/internal/models"
	"github.com/aman-churiwal/x402-gateway/internal/registry"
)

// ProofHeader carries the signed payment proof on subscribe calls.
const ProofHeader = "X-Payment-Proof"

type SubscriptionHandler struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
	catalog  *catalog.Catalog
}

func NewSubscriptionHandler(reg *registry.Registry, led *ledger.Ledger, cat *catalog.Catalog) *SubscriptionHandler {
	return &SubscriptionHandler{
		registry: reg,
		ledger:   led,
		catalog:  cat,
	}
}

// Subscribe applies a payment proof. The proof itself names the
// subscriber and the tier; subscribing never consumes quota.
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	token := strings.TrimSpace(c.GetHeader(ProofHeader))
	if token == "" {
		var req struct {
			Proof string `json:"proof"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			token = strings.TrimSpace(req.Proof)
		}
	}

	status, err := h.registry.ApplyProof(c.Request.Context(), token)
	if err != nil {
		reason := apierror.ReasonOf(err)
		metrics.ProofsTotal.WithLabelValues(reason.String()).Inc()
		c.JSON(reason.HTTPStatus(), gin.H{
			"error":  err.Error(),
			"reason": reason.String(),
		})
		return
	}

	metrics.ProofsTotal.WithLabelValues("accepted").Inc()

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"tier":         status.Tier.String(),
		"started_at":   status.StartedAt,
		"expires_at":   status.ExpiresAt,
		"instructions": "Include the '" + middleware.SubscriberHeader + "' header from your proof's subject in API requests",
	})
}

// Status reports the caller's tier and current-period usage.
func (h *SubscriptionHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	subscriberID := c.GetString(middleware.CtxSubscriberID)

	status, err := h.registry.TierStatus(ctx, subscriberID)
	if err != nil {
		reason := apierror.ReasonOf(err)
		c.JSON(reason.HTTPStatus(), gin.H{"error": err.Error(), "reason": reason.String()})
		return
	}

	def, ok := h.catalog.Lookup(status.Tier)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tier missing from catalog"})
		return
	}

	usage, err := h.ledger.Usage(ctx, subscriberID, def, status.StartedAt)
	if err != nil {
		reason := apierror.ReasonOf(err)
		c.JSON(reason.HTTPStatus(), gin.H{"error": err.Error(), "reason": reason.String()})
		return
	}

	resp := gin.H{
		"tier": status.Tier.String(),
		"usage": gin.H{
			"used":      usage.Count,
			"limit":     usage.Limit,
			"remaining": usage.Remaining(),
			"period":    usage.PeriodKey,
		},
	}
	if status.Tier != models.TierFree {
		resp["expires"] = status.ExpiresAt
	}

	c.JSON(http.StatusOK, resp)
}
