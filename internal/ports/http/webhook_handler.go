// Package http exposes the payment status operations over gin.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/uniedit/paystatus/internal/domain/order"
	"github.com/uniedit/paystatus/internal/infra/broker"
	apperrors "github.com/uniedit/paystatus/internal/utils/errors"
	"github.com/uniedit/paystatus/internal/utils/requestctx"
	"github.com/uniedit/paystatus/internal/utils/response"
	"go.uber.org/zap"
)

// SourceWebhook labels status updates that arrived through the webhook.
const SourceWebhook = "webhook"

// StatusPublisher enqueues status updates.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, update order.StatusUpdate) error
}

// OrderFinder looks up orders by ID.
type OrderFinder interface {
	Find(ctx context.Context, orderID string) (*order.Order, error)
}

// StatusRecorder receives status update outcomes.
type StatusRecorder interface {
	RecordStatusUpdate(source, outcome string)
}

// WebhookHandler handles payment gateway notifications.
type WebhookHandler struct {
	applier   order.StatusApplier
	publisher StatusPublisher
	orders    OrderFinder
	logger    *zap.Logger
	metrics   StatusRecorder
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(
	applier order.StatusApplier,
	publisher StatusPublisher,
	orders OrderFinder,
	logger *zap.Logger,
	metrics StatusRecorder,
) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		applier:   applier,
		publisher: publisher,
		orders:    orders,
		logger:    logger.Named("webhook"),
		metrics:   metrics,
	}
}

// RegisterWebhookRoutes registers the gateway notification routes. The
// group must carry the S2S guard.
func (h *WebhookHandler) RegisterWebhookRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/webhooks/notifications")
	{
		notifications.POST("/status", h.UpdateStatus)
		notifications.POST("/test-queue", h.EnqueueStatus)
	}
}

// RegisterOrderRoutes registers read-only order routes.
func (h *WebhookHandler) RegisterOrderRoutes(r *gin.RouterGroup) {
	r.GET("/orders/:orderId/status", h.GetStatus)
}

// StatusUpdateRequest is the notification body.
type StatusUpdateRequest struct {
	OrderID string `json:"orderId" binding:"required" example:"ORD-1"`
	Status  string `json:"status" binding:"required" example:"paid"`
}

// OrderStatusResponse is the status lookup result.
type OrderStatusResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// UpdateStatus applies a payment status notification.
//
//	@Summary		Receive payment status notification
//	@Description	Apply a status change pushed by the payment gateway. Repeated notifications are no-ops.
//	@Tags			Webhook
//	@Accept			json
//	@Produce		json
//	@Security		S2SApiKey
//	@Param			request	body		StatusUpdateRequest	true	"Status update"
//	@Success		200		{object}	response.MessageResponse
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		401		{object}	response.ErrorResponse
//	@Failure		500		{object}	response.ErrorResponse
//	@Router			/webhooks/notifications/status [post]
func (h *WebhookHandler) UpdateStatus(c *gin.Context) {
	update, ok := h.bindUpdate(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	outcome, err := h.applier.Apply(ctx, update.OrderID, update.Status)
	h.record(outcome)
	if err != nil {
		appErr := toAppError(err)
		if appErr.StatusCode >= http.StatusInternalServerError {
			h.logger.Error("apply status update failed",
				zap.String("order_id", update.OrderID),
				zap.String("status", update.Status),
				zap.String("request_id", requestctx.RequestID(ctx)),
				zap.Error(err),
			)
		}
		response.FromError(c, appErr)
		return
	}

	response.Message(c, "Status for order "+update.OrderID+" processed")
}

// EnqueueStatus publishes a status update to the status queue.
//
//	@Summary		Enqueue payment status update
//	@Description	Publish a status update to the durable status queue for asynchronous processing.
//	@Tags			Webhook
//	@Accept			json
//	@Produce		json
//	@Security		S2SApiKey
//	@Param			request	body		StatusUpdateRequest	true	"Status update"
//	@Success		200		{object}	response.MessageResponse
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		401		{object}	response.ErrorResponse
//	@Failure		503		{object}	response.ErrorResponse
//	@Router			/webhooks/notifications/test-queue [post]
func (h *WebhookHandler) EnqueueStatus(c *gin.Context) {
	update, ok := h.bindUpdate(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.publisher.PublishStatus(ctx, update); err != nil {
		appErr := toAppError(err)
		switch appErr.StatusCode {
		case http.StatusServiceUnavailable:
			h.logger.Warn("status queue unavailable",
				zap.String("order_id", update.OrderID),
				zap.Error(err),
			)
		case http.StatusInternalServerError:
			h.logger.Error("publish status update failed",
				zap.String("order_id", update.OrderID),
				zap.String("request_id", requestctx.RequestID(ctx)),
				zap.Error(err),
			)
		}
		response.FromError(c, appErr)
		return
	}

	response.Message(c, "queued")
}

// GetStatus returns the current status of an order.
//
//	@Summary		Get order status
//	@Description	Look up the current payment status of an order for reconciliation.
//	@Tags			Order
//	@Produce		json
//	@Security		BearerAuth
//	@Security		S2SApiKey
//	@Param			orderId	path		string	true	"Order ID"
//	@Success		200		{object}	OrderStatusResponse
//	@Failure		401		{object}	response.ErrorResponse
//	@Failure		404		{object}	response.ErrorResponse
//	@Router			/orders/{orderId}/status [get]
func (h *WebhookHandler) GetStatus(c *gin.Context) {
	orderID := c.Param("orderId")

	o, err := h.orders.Find(c.Request.Context(), orderID)
	if err != nil {
		appErr := toAppError(err)
		if appErr.StatusCode >= http.StatusInternalServerError {
			h.logger.Error("find order failed", zap.String("order_id", orderID), zap.Error(err))
		}
		response.FromError(c, appErr)
		return
	}

	c.JSON(http.StatusOK, OrderStatusResponse{OrderID: o.ID, Status: o.Status.String()})
}

// bindUpdate reads the body captured by the S2S guard and validates it.
func (h *WebhookHandler) bindUpdate(c *gin.Context) (order.StatusUpdate, bool) {
	var req StatusUpdateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "orderId and status are required")
		return order.StatusUpdate{}, false
	}

	update := order.StatusUpdate{OrderID: req.OrderID, Status: req.Status}.Normalize()
	if err := update.Validate(); err != nil {
		response.BadRequest(c, err.Error())
		return order.StatusUpdate{}, false
	}
	return update, true
}

// toAppError maps domain and broker errors to HTTP errors. Anything
// unrecognised is internal.
func toAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, order.ErrInvalidUpdate):
		return apperrors.BadRequest(err.Error())
	case errors.Is(err, order.ErrOrderNotFound):
		return apperrors.NotFound("order")
	case errors.Is(err, broker.ErrBrokerUnavailable):
		return apperrors.ServiceUnavailable("queue unavailable")
	default:
		return apperrors.Internal("", err)
	}
}

func (h *WebhookHandler) record(outcome order.Outcome) {
	if h.metrics != nil && outcome != "" {
		h.metrics.RecordStatusUpdate(SourceWebhook, string(outcome))
	}
}
