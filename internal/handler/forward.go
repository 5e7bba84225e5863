package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/x402-gateway/internal/apierror"
	"github.com/aman-churiwal/x402-gateway/internal/backend"
)

// ForwardHandler relays admitted requests to the service backend. The
// action payload and the backend's response are opaque to the gateway.
type ForwardHandler struct {
	client *backend.Client
}

func NewForwardHandler(client *backend.Client) *ForwardHandler {
	return &ForwardHandler{client: client}
}

func (h *ForwardHandler) Forward(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}

	result, err := h.client.Execute(
		c.Request.Context(),
		c.Request.Method,
		c.Request.URL.RequestURI(),
		c.Request.Header,
		body,
	)
	if err != nil {
		reason := apierror.ReasonOf(err)
		c.JSON(reason.HTTPStatus(), gin.H{
			"error":  "Service backend unavailable, please retry later",
			"reason": reason.String(),
		})
		return
	}

	contentType := result.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(result.StatusCode, contentType, result.Body)
}
