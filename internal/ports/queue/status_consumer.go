// Package queue connects the payment status queue to the order domain.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uniedit/paystatus/internal/domain/order"
	"github.com/uniedit/paystatus/internal/infra/broker"
	"go.uber.org/zap"
)

// SourceQueue labels status updates that arrived through the queue.
const SourceQueue = "queue"

// ErrMalformedMessage is returned for bodies that are not a status update.
var ErrMalformedMessage = errors.New("malformed status message")

// StatusRecorder receives status update outcomes.
type StatusRecorder interface {
	RecordStatusUpdate(source, outcome string)
}

// StatusConsumer turns queue messages into status updates.
type StatusConsumer struct {
	applier order.StatusApplier
	logger  *zap.Logger
	metrics StatusRecorder
}

// NewStatusConsumer creates a new status consumer.
func NewStatusConsumer(applier order.StatusApplier, logger *zap.Logger, metrics StatusRecorder) *StatusConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusConsumer{
		applier: applier,
		logger:  logger.Named("status_consumer"),
		metrics: metrics,
	}
}

// Handle decodes msg and applies it. Payloads that can never succeed are
// permanent failures; repository errors are retried.
func (s *StatusConsumer) Handle(ctx context.Context, msg broker.Message) broker.Result {
	var update order.StatusUpdate
	if err := json.Unmarshal([]byte(msg.Body), &update); err != nil {
		s.record(order.OutcomeFailed)
		return broker.PermanentFailure(fmt.Errorf("%w: %v", ErrMalformedMessage, err))
	}

	outcome, err := s.applier.Apply(ctx, update.OrderID, update.Status)
	s.record(outcome)
	if err != nil {
		if errors.Is(err, order.ErrInvalidUpdate) {
			return broker.PermanentFailure(fmt.Errorf("%w: %v", ErrMalformedMessage, err))
		}
		return broker.RetryableFailure(err)
	}

	s.logger.Debug("status message handled",
		zap.String("order_id", update.OrderID),
		zap.String("outcome", string(outcome)),
		zap.String("message_id", msg.MessageID),
		zap.Bool("redelivered", msg.Redelivered),
	)
	return broker.Ok()
}

// HandlerFunc adapts s to the broker consumer.
func (s *StatusConsumer) HandlerFunc() broker.HandlerFunc {
	return s.Handle
}

func (s *StatusConsumer) record(outcome order.Outcome) {
	if s.metrics != nil {
		s.metrics.RecordStatusUpdate(SourceQueue, string(outcome))
	}
}
