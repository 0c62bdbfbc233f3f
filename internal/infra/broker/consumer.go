package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Consumer errors.
var (
	ErrInvalidUTF8  = errors.New("message body is not valid UTF-8")
	ErrHandlerPanic = errors.New("message handler panicked")
)

// Message is a delivery as seen by a handler.
type Message struct {
	Body        string
	Redelivered bool
	MessageID   string
	DeliveryTag uint64
}

// HandlerFunc processes one message. The context is not cancelled on
// shutdown; a running handler is allowed to finish.
type HandlerFunc func(ctx context.Context, msg Message) Result

// Recorder receives queue metrics.
type Recorder interface {
	RecordQueueMessage(queue, outcome string, duration time.Duration)
	RecordReconnect(queue string)
	RecordPublish(queue string, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordQueueMessage(string, string, time.Duration) {}
func (nopRecorder) RecordReconnect(string)                          {}
func (nopRecorder) RecordPublish(string, error)                     {}

// Settlement outcomes, also used as metric labels.
const (
	OutcomeAck        = "ack"
	OutcomeRequeue    = "requeue"
	OutcomeDrop       = "drop"
	OutcomeDeadLetter = "dead_letter"
)

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerTag sets the consumer tag reported to the broker.
func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) { c.tag = tag }
}

// WithReconnectBackoff overrides the reconnect delays.
func WithReconnectBackoff(initial, max time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) ConsumerOption {
	return func(c *Consumer) {
		if r != nil {
			c.metrics = r
		}
	}
}

// Consumer reads one queue with manual acknowledgement. Each consumer owns
// its connection and channel.
type Consumer struct {
	dial    DialFunc
	conn    ConnectionConfig
	queue   QueueConfig
	handler HandlerFunc
	logger  *zap.Logger
	metrics Recorder
	tag     string

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewConsumer creates a consumer for queue.
func NewConsumer(dial DialFunc, conn ConnectionConfig, queue QueueConfig, handler HandlerFunc, logger *zap.Logger, opts ...ConsumerOption) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Consumer{
		dial:           dial,
		conn:           conn,
		queue:          queue,
		handler:        handler,
		logger:         logger,
		metrics:        nopRecorder{},
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("queue", queue.Name), zap.String("consumer", c.tag))
	return c
}

// Run consumes until ctx is cancelled. A failure to start is returned; once
// started, lost connections are re-established with exponential backoff and
// Run returns nil on shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	sess, deliveries, err := c.start()
	if err != nil {
		return fmt.Errorf("start consumer on %s: %w", c.queue.Name, err)
	}
	c.logger.Info("consumer started", zap.Int("prefetch", c.queue.prefetch()))

	for {
		c.consume(ctx, deliveries)
		sess.close()

		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return nil
		}

		c.logger.Warn("delivery channel closed, reconnecting")
		sess, deliveries, err = c.reconnect(ctx)
		if err != nil {
			c.logger.Info("consumer stopped while reconnecting")
			return nil
		}
	}
}

// start declares the queue, applies QoS and begins consuming.
func (c *Consumer) start() (*session, <-chan amqp.Delivery, error) {
	sess, err := openSession(c.dial, c.conn)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.declare(c.queue); err != nil {
		sess.close()
		return nil, nil, err
	}
	if err := sess.ch.Qos(c.queue.prefetch(), 0, false); err != nil {
		sess.close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := sess.ch.Consume(c.queue.Name, c.tag, false, false, false, false, nil)
	if err != nil {
		sess.close()
		return nil, nil, fmt.Errorf("consume %s: %w", c.queue.Name, err)
	}
	return sess, deliveries, nil
}

func (c *Consumer) reconnect(ctx context.Context) (*session, <-chan amqp.Delivery, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0

	var (
		sess       *session
		deliveries <-chan amqp.Delivery
	)
	op := func() error {
		c.metrics.RecordReconnect(c.queue.Name)
		var err error
		sess, deliveries, err = c.start()
		return err
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", next))
	}

	// Wait before the first attempt; the broker just dropped us.
	timer := time.NewTimer(c.initialBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-timer.C:
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, nil, err
	}
	c.logger.Info("consumer reconnected")
	return sess, deliveries, nil
}

// consume dispatches deliveries until ctx is done or the channel closes.
func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				// Unacked; the broker redelivers it once the channel closes.
				return
			}
			c.dispatch(context.WithoutCancel(ctx), d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	msg := Message{
		Body:        string(d.Body),
		Redelivered: d.Redelivered,
		MessageID:   d.MessageId,
		DeliveryTag: d.DeliveryTag,
	}

	var res Result
	if !utf8.Valid(d.Body) {
		res = PermanentFailure(ErrInvalidUTF8)
	} else {
		res = c.invoke(ctx, msg)
	}

	outcome := c.settle(d, res)
	c.metrics.RecordQueueMessage(c.queue.Name, outcome, time.Since(start))
}

func (c *Consumer) invoke(ctx context.Context, msg Message) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panicked",
				zap.Any("panic", r),
				zap.Uint64("delivery_tag", msg.DeliveryTag),
				zap.Stack("stack"),
			)
			res = RetryableFailure(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
		}
	}()
	return c.handler(ctx, msg)
}

// settle acks or nacks d according to res and returns the outcome label.
func (c *Consumer) settle(d amqp.Delivery, res Result) string {
	fields := []zap.Field{
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.String("message_id", d.MessageId),
		zap.Bool("redelivered", d.Redelivered),
	}

	var (
		outcome string
		err     error
	)
	switch {
	case res.IsOk():
		outcome = OutcomeAck
		err = d.Ack(false)
	case res.IsRetryable():
		outcome = OutcomeRequeue
		c.logger.Warn("message handling failed, requeueing", append(fields, zap.Error(res.Err()))...)
		err = d.Nack(false, true)
	case c.queue.deadLettering():
		outcome = OutcomeDeadLetter
		c.logger.Error("message rejected, dead-lettering", append(fields, zap.Error(res.Err()))...)
		err = d.Nack(false, false)
	default:
		outcome = OutcomeDrop
		c.logger.Error("message rejected, dropping", append(fields, zap.Error(res.Err()))...)
		err = d.Ack(false)
	}

	if err != nil {
		// The channel is gone; the broker will redeliver.
		c.logger.Warn("settle delivery failed", append(fields, zap.String("outcome", outcome), zap.Error(err))...)
	}
	return outcome
}

// Pool runs several consumers on the same queue.
type Pool struct {
	consumers []*Consumer
}

// NewPool creates workers consumers using newConsumer.
func NewPool(workers int, newConsumer func(worker int) *Consumer) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{consumers: make([]*Consumer, 0, workers)}
	for i := 0; i < workers; i++ {
		p.consumers = append(p.consumers, newConsumer(i))
	}
	return p
}

// Size returns the number of consumers.
func (p *Pool) Size() int {
	return len(p.consumers)
}

// Run starts every consumer and blocks until ctx is cancelled. The first
// startup failure stops the others and is returned.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range p.consumers {
		c := c
		g.Go(func() error {
			return c.Run(gctx)
		})
	}
	return g.Wait()
}
