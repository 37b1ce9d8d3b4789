package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/signalgate/signalgate/internal/middleware"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/signalgate/signalgate/internal/service"
)

type WebhookHandler struct {
	pipeline *service.PipelineService
}

func NewWebhookHandler(pipeline *service.PipelineService) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline}
}

// Receive is the fire-and-forget alert ingress: 202 means the signal was
// normalized and queued, nothing about its eventual execution.
func (h *WebhookHandler) Receive(c *gin.Context) {
	instanceID := c.Param("id")
	if instanceID == "" {
		_ = c.Error(apperrors.NewInvalidRequest("instance id is required"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.Error(apperrors.NewInvalidRequest("unreadable request body"))
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		_ = c.Error(apperrors.NewInvalidRequest("body is not a JSON object"))
		return
	}

	sig, err := h.pipeline.Ingest(c.Request.Context(), instanceID, "webhook", payload)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		_ = c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "signal_id", sig.ID)
	c.JSON(http.StatusAccepted, gin.H{
		"status":    "queued",
		"signal_id": sig.ID,
	})
}
