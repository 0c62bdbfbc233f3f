package broker

import (
	"context"
	"errors"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type settlement struct {
	tag     uint64
	kind    string // ack | nack
	requeue bool
}

// fakeAcknowledger records settlements and optionally requeues nacked
// deliveries onto a channel the way the broker would.
type fakeAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
	events  chan settlement
	err     error

	requeueTo chan amqp.Delivery
	pending   map[uint64]amqp.Delivery
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{
		events:  make(chan settlement, 64),
		pending: make(map[uint64]amqp.Delivery),
	}
}

func (a *fakeAcknowledger) record(s settlement) error {
	a.mu.Lock()
	a.settled = append(a.settled, s)
	d, ok := a.pending[s.tag]
	requeueTo := a.requeueTo
	a.mu.Unlock()

	if s.requeue && ok && requeueTo != nil {
		d.Redelivered = true
		requeueTo <- d
	}
	a.events <- s
	return a.err
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	return a.record(settlement{tag: tag, kind: "ack"})
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	return a.record(settlement{tag: tag, kind: "nack", requeue: requeue})
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.record(settlement{tag: tag, kind: "nack", requeue: requeue})
}

func (a *fakeAcknowledger) delivery(tag uint64, body string) amqp.Delivery {
	d := amqp.Delivery{
		Acknowledger: a,
		DeliveryTag:  tag,
		MessageId:    "msg-" + strconv.FormatUint(tag, 10),
		Body:         []byte(body),
	}
	a.mu.Lock()
	a.pending[tag] = d
	a.mu.Unlock()
	return d
}

func (a *fakeAcknowledger) all() []settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]settlement(nil), a.settled...)
}

type declareCall struct {
	name    string
	durable bool
	args    amqp.Table
}

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	calls      []string
	declared   []declareCall
	prefetch   int
	autoAck    bool
	deliveries chan amqp.Delivery
	published  []publishCall
	closed     bool

	declareErr error
	qosErr     error
	consumeErr error
	publishErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "qos")
	c.prefetch = prefetchCount
	return c.qosErr
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "declare")
	c.declared = append(c.declared, declareCall{name: name, durable: durable, args: args})
	return amqp.Queue{Name: name}, c.declareErr
}

func (c *fakeChannel) Consume(_ string, _ string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "consume")
	c.autoAck = autoAck
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	return c.deliveries, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "publish")
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishCall{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) callOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeConnection struct {
	mu     sync.Mutex
	ch     *fakeChannel
	chErr  error
	closed bool
}

func (c *fakeConnection) Channel() (Channel, error) {
	if c.chErr != nil {
		return nil, c.chErr
	}
	return c.ch, nil
}

func (c *fakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeDialer hands out the queued connections in order, then fails.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConnection
	errs  []error
	dials int
}

var errDialExhausted = errors.New("dial: connection refused")

func (d *fakeDialer) dial(ConnectionConfig) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.dials
	d.dials++
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	if i < len(d.conns) {
		return d.conns[i], nil
	}
	return nil, errDialExhausted
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
