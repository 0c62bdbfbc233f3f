package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrBrokerUnavailable is returned while the publish circuit is open.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// BreakerConfig configures the publish circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Producer publishes persistent JSON messages to work queues through the
// default exchange. Safe for concurrent use.
type Producer struct {
	dial    DialFunc
	conn    ConnectionConfig
	breaker *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
	metrics Recorder

	now   func() time.Time
	newID func() string

	mu   sync.Mutex
	sess *session
}

// NewProducer creates a producer. The connection is opened on first publish.
func NewProducer(dial DialFunc, conn ConnectionConfig, cfg BreakerConfig, logger *zap.Logger, metrics Recorder) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg = DefaultBreakerConfig()
	}
	p := &Producer{
		dial:    dial,
		conn:    conn,
		logger:  logger.Named("producer"),
		metrics: metrics,
		now:     time.Now,
		newID:   uuid.NewString,
	}

	threshold := cfg.ConsecutiveFailures
	p.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "broker-publish",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("publish circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return p
}

// Publish JSON-encodes payload and publishes it to queue.
func (p *Producer) Publish(ctx context.Context, queue QueueConfig, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.publish(ctx, queue, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	p.metrics.RecordPublish(queue.Name, err)
	return err
}

func (p *Producer) publish(ctx context.Context, queue QueueConfig, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sess == nil || p.sess.ch.IsClosed() {
		p.sess.close()
		sess, err := openSession(p.dial, p.conn)
		if err != nil {
			p.sess = nil
			return err
		}
		p.sess = sess
	}

	if err := p.sess.declare(queue); err != nil {
		p.reset()
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    p.newID(),
		Timestamp:    p.now(),
		Body:         body,
	}
	if err := p.sess.ch.PublishWithContext(ctx, "", queue.Name, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("publish to %s: %w", queue.Name, err)
	}

	p.logger.Debug("message published",
		zap.String("queue", queue.Name),
		zap.String("message_id", msg.MessageId),
	)
	return nil
}

// reset drops the session so the next publish re-dials. Caller holds mu.
func (p *Producer) reset() {
	p.sess.close()
	p.sess = nil
}

// Close releases the connection.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
