// Package broker is the RabbitMQ transport: a manual-ack work-queue consumer
// with automatic reconnection and a persistent-message producer.
package broker

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionConfig holds broker connection settings.
type ConnectionConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	VHost     string
	Heartbeat time.Duration
}

// URL returns the amqp:// URI for the configuration.
func (c ConnectionConfig) URL() string {
	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Vhost:    c.VHost,
	}
	if uri.Host == "" {
		uri.Host = "localhost"
	}
	if uri.Port == 0 {
		uri.Port = 5672
	}
	if uri.Vhost == "" {
		uri.Vhost = "/"
	}
	return uri.String()
}

// QueueConfig describes a work queue. Consumer and producer must declare it
// with identical settings or the broker rejects the second declaration.
type QueueConfig struct {
	Name               string
	Durable            bool
	Prefetch           int
	DeadLetterExchange string
}

// DefaultQueueConfig returns a durable queue with fair dispatch.
func DefaultQueueConfig(name string) QueueConfig {
	return QueueConfig{
		Name:     name,
		Durable:  true,
		Prefetch: 1,
	}
}

func (q QueueConfig) prefetch() int {
	if q.Prefetch <= 0 {
		return 1
	}
	return q.Prefetch
}

func (q QueueConfig) arguments() amqp.Table {
	if q.DeadLetterExchange == "" {
		return nil
	}
	return amqp.Table{"x-dead-letter-exchange": q.DeadLetterExchange}
}

func (q QueueConfig) deadLettering() bool {
	return q.DeadLetterExchange != ""
}
