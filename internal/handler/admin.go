package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/x402-gateway/internal/registry"
	"github.com/aman-churiwal/x402-gateway/internal/repository"
	"github.com/aman-churiwal/x402-gateway/internal/service"
)

type AdminHandler struct {
	auth     *service.AuthService
	registry *registry.Registry
	audit    *repository.AuditLogRepository
}

func NewAdminHandler(auth *service.AuthService, reg *registry.Registry, audit *repository.AuditLogRepository) *AdminHandler {
	return &AdminHandler{
		auth:     auth,
		registry: reg,
		audit:    audit,
	}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AdminHandler) ListSubscribers(c *gin.Context) {
	subs, err := h.registry.Subscribers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscribers": subs, "count": len(subs)})
}

// GetSubscriber returns one subscriber's tier history and proof lineage.
func (h *AdminHandler) GetSubscriber(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	history, err := h.registry.History(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(history) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscriber not found"})
		return
	}

	lineage, err := h.registry.Lineage(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriber_id": id,
		"tier_history":  history,
		"proof_lineage": lineage,
	})
}

// DenialStats summarizes refused requests over the last 24h.
func (h *AdminHandler) DenialStats(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Audit trail not enabled"})
		return
	}

	to := time.Now()
	from := to.Add(-24 * time.Hour)

	stats, err := h.audit.CountDenials(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":    from,
		"to":      to,
		"denials": stats,
	})
}
