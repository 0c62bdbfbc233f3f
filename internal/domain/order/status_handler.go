package order

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Outcome describes what Apply did with an update.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeNoOp     Outcome = "noop"
	OutcomeNotFound Outcome = "not_found"
	OutcomeFailed   Outcome = "failed"
)

// StatusApplier applies payment status updates to orders. Both the webhook
// and the queue consumer go through it.
type StatusApplier interface {
	Apply(ctx context.Context, orderID, status string) (Outcome, error)
}

// StatusHandler is the idempotent status update operation.
type StatusHandler struct {
	repo   Repository
	logger *zap.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(repo Repository, logger *zap.Logger) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{
		repo:   repo,
		logger: logger.Named("order_status"),
	}
}

// Apply moves the order to status.
//
// A missing order and an order already in the target status both return a
// nil error: neither gets better on redelivery. Only repository failures are
// returned, and those are safe to retry.
func (h *StatusHandler) Apply(ctx context.Context, orderID, status string) (Outcome, error) {
	update := StatusUpdate{OrderID: orderID, Status: status}.Normalize()
	if err := update.Validate(); err != nil {
		return OutcomeFailed, err
	}
	target := Status(update.Status)

	o, err := h.repo.Find(ctx, update.OrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			h.logger.Warn("order not found, skipping status update",
				zap.String("order_id", update.OrderID),
				zap.String("status", update.Status),
			)
			return OutcomeNotFound, nil
		}
		return OutcomeFailed, fmt.Errorf("find order %s: %w", update.OrderID, err)
	}

	// Idempotency check: already in target status
	if o.HasStatus(target) {
		h.logger.Info("order already in target status, skipping",
			zap.String("order_id", o.ID),
			zap.String("status", update.Status),
		)
		return OutcomeNoOp, nil
	}

	previous := o.Status
	if err := h.repo.UpdateStatus(ctx, o, target); err != nil {
		return OutcomeFailed, fmt.Errorf("update order %s status: %w", o.ID, err)
	}

	h.logger.Info("order status updated",
		zap.String("order_id", o.ID),
		zap.String("from", previous.String()),
		zap.String("to", target.String()),
	)
	return OutcomeApplied, nil
}

// Compile-time check that StatusHandler implements StatusApplier.
var _ StatusApplier = (*StatusHandler)(nil)
