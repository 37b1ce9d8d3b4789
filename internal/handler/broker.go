package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/signalgate/signalgate/internal/middleware"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/signalgate/signalgate/internal/service"
)

type BrokerHandler struct {
	broker *service.BrokerService
}

func NewBrokerHandler(broker *service.BrokerService) *BrokerHandler {
	return &BrokerHandler{broker: broker}
}

// PlaceOrder is the synchronous path: the caller holds a workspace-scoped
// token and receives the placement outcome in the response.
func (h *BrokerHandler) PlaceOrder(c *gin.Context) {
	workspaceID := c.GetString(middleware.ContextWorkspaceKey)
	if workspaceID == "" {
		_ = c.Error(apperrors.NewAuthFailed("missing workspace scope"))
		return
	}

	instanceID := c.Param("id")
	if instanceID == "" {
		instanceID = c.GetString(middleware.ContextInstanceKey)
	}

	var req model.BrokerOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}

	order, err := h.broker.PlaceOrder(c.Request.Context(), workspaceID, instanceID, req)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		_ = c.Error(err)
		return
	}

	middleware.AddAuditContext(c, "order_id", order.ID)
	c.JSON(http.StatusOK, order)
}
