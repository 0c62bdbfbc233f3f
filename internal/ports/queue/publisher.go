package queue

import (
	"context"

	"github.com/uniedit/paystatus/internal/domain/order"
	"github.com/uniedit/paystatus/internal/infra/broker"
)

// Publisher sends payloads to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue broker.QueueConfig, payload any) error
}

// StatusPublisher enqueues status updates for the status consumer.
type StatusPublisher struct {
	publisher Publisher
	queue     broker.QueueConfig
}

// NewStatusPublisher creates a publisher for queue. The queue must be
// declared with the same settings the consumer uses.
func NewStatusPublisher(publisher Publisher, queue broker.QueueConfig) *StatusPublisher {
	return &StatusPublisher{publisher: publisher, queue: queue}
}

// PublishStatus validates update and enqueues it.
func (p *StatusPublisher) PublishStatus(ctx context.Context, update order.StatusUpdate) error {
	update = update.Normalize()
	if err := update.Validate(); err != nil {
		return err
	}
	return p.publisher.Publish(ctx, p.queue, update)
}

// Queue returns the target queue name.
func (p *StatusPublisher) Queue() string {
	return p.queue.Name
}
