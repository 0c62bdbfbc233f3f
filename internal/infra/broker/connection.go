package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// Connection is the subset of *amqp.Connection used here.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// DialFunc opens a broker connection.
type DialFunc func(cfg ConnectionConfig) (Connection, error)

// Dial connects to RabbitMQ.
func Dial(cfg ConnectionConfig) (Connection, error) {
	amqpCfg := amqp.Config{
		Heartbeat: cfg.Heartbeat,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "paystatus",
		},
	}
	conn, err := amqp.DialConfig(cfg.URL(), amqpCfg)
	if err != nil {
		return nil, fmt.Errorf("dial broker %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) IsClosed() bool { return c.conn.IsClosed() }

func (c *amqpConnection) Close() error { return c.conn.Close() }

// session is one connection with one channel on it.
type session struct {
	conn Connection
	ch   Channel
}

func openSession(dial DialFunc, cfg ConnectionConfig) (*session, error) {
	conn, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &session{conn: conn, ch: ch}, nil
}

func (s *session) declare(q QueueConfig) error {
	if _, err := s.ch.QueueDeclare(q.Name, q.Durable, false, false, false, q.arguments()); err != nil {
		return fmt.Errorf("declare queue %s: %w", q.Name, err)
	}
	return nil
}

// close releases the channel and connection. Errors are ignored: the peer may
// already be gone.
func (s *session) close() {
	if s == nil {
		return
	}
	if s.ch != nil && !s.ch.IsClosed() {
		_ = s.ch.Close()
	}
	if s.conn != nil && !s.conn.IsClosed() {
		_ = s.conn.Close()
	}
}
