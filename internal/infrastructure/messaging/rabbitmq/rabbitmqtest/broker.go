// Package rabbitmqtest provides an in-memory broker for testing code built
// on the rabbitmq package.
//
// Broker models one durable queue with manual acknowledgement: it honors the
// subscriber's prefetch, requeues nacked deliveries at the head with the
// redelivered flag set and returns unacknowledged deliveries to the queue
// when a subscription is closed or the connection is dropped.
package rabbitmqtest

import (
	"context"
	"errors"
	"sort"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Haleralex/jobboard/internal/infrastructure/messaging/rabbitmq"
)

// ErrUnknownDeliveryTag is returned when acknowledging a tag the broker
// does not hold, for example after the subscription was dropped.
var ErrUnknownDeliveryTag = errors.New("rabbitmqtest: unknown delivery tag")

type message struct {
	pub         amqp.Publishing
	redelivered bool
}

// Broker is an in-memory queue. The zero value is not usable; call NewBroker.
type Broker struct {
	mu        sync.Mutex
	queue     []message
	unacked   map[uint64]message
	nextTag   uint64
	published []amqp.Publishing
	listeners []chan struct{}
	sub       *subscription
	kick      chan struct{}

	publishErr   error
	subscribeErr error

	acked       int
	requeued    int
	discarded   int
	maxInFlight int
	subscribes  int
}

var (
	_ rabbitmq.DeliverySource = (*Broker)(nil)
	_ rabbitmq.PublishChannel = (*Broker)(nil)
	_ amqp.Acknowledger       = (*Broker)(nil)
)

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		unacked: make(map[uint64]message),
		kick:    make(chan struct{}, 1),
	}
}

// Opener returns a channel opener for rabbitmq.NewChannelPublisher.
func (b *Broker) Opener() rabbitmq.ChannelOpener {
	return func(context.Context) (rabbitmq.PublishChannel, error) {
		return b, nil
	}
}

// PublishWithContext enqueues msg.
func (b *Broker) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	b.mu.Lock()
	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, msg)
	b.queue = append(b.queue, message{pub: msg})
	b.mu.Unlock()

	b.signal()
	return nil
}

// IsClosed always reports false.
func (b *Broker) IsClosed() bool { return false }

// Close is a no-op for the publishing side.
func (b *Broker) Close() error { return nil }

// Inject enqueues a raw body with no metadata, as a foreign producer might.
func (b *Broker) Inject(body []byte) {
	b.mu.Lock()
	b.queue = append(b.queue, message{pub: amqp.Publishing{Body: body}})
	b.mu.Unlock()
	b.signal()
}

// FailPublish makes every publish return err until called with nil.
func (b *Broker) FailPublish(err error) {
	b.mu.Lock()
	b.publishErr = err
	b.mu.Unlock()
}

// FailSubscribe makes every subscribe return err until called with nil.
func (b *Broker) FailSubscribe(err error) {
	b.mu.Lock()
	b.subscribeErr = err
	b.mu.Unlock()
}

// Subscribe attaches a consumer honoring prefetch.
func (b *Broker) Subscribe(_ context.Context, _ string, prefetch int) (rabbitmq.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}

	s := &subscription{
		b:        b,
		prefetch: prefetch,
		out:      make(chan amqp.Delivery),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	b.sub = s
	b.subscribes++
	go s.pump()
	return s, nil
}

// NotifyReconnect registers a reconnect listener.
func (b *Broker) NotifyReconnect() <-chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.listeners = append(b.listeners, ch)
	b.mu.Unlock()
	return ch
}

// Disconnect kills the active subscription as a lost connection would.
// Its deliveries channel closes and unacknowledged messages are requeued.
func (b *Broker) Disconnect() {
	b.mu.Lock()
	s := b.sub
	b.sub = nil
	b.mu.Unlock()

	if s != nil {
		s.halt()
	}
	b.requeueUnacked()
}

// Reconnect notifies listeners that the connection is back.
func (b *Broker) Reconnect() {
	b.mu.Lock()
	listeners := append([]chan struct{}(nil), b.listeners...)
	b.mu.Unlock()

	for _, l := range listeners {
		select {
		case l <- struct{}{}:
		default:
		}
	}
}

// Ack implements amqp.Acknowledger.
func (b *Broker) Ack(tag uint64, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.unacked[tag]; !ok {
		return ErrUnknownDeliveryTag
	}
	delete(b.unacked, tag)
	b.acked++
	b.signalLocked()
	return nil
}

// Nack implements amqp.Acknowledger.
func (b *Broker) Nack(tag uint64, _ bool, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.unacked[tag]
	if !ok {
		return ErrUnknownDeliveryTag
	}
	delete(b.unacked, tag)

	if requeue {
		m.redelivered = true
		b.queue = append([]message{m}, b.queue...)
		b.requeued++
	} else {
		b.discarded++
	}
	b.signalLocked()
	return nil
}

// Reject implements amqp.Acknowledger.
func (b *Broker) Reject(tag uint64, requeue bool) error {
	return b.Nack(tag, false, requeue)
}

// Published returns every message accepted by PublishWithContext.
func (b *Broker) Published() []amqp.Publishing {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]amqp.Publishing(nil), b.published...)
}

// Pending returns the number of messages waiting for delivery.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Unacked returns the number of delivered, unacknowledged messages.
func (b *Broker) Unacked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.unacked)
}

// Acked returns the number of positive acknowledgements.
func (b *Broker) Acked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acked
}

// Requeued returns the number of nacks with requeue.
func (b *Broker) Requeued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requeued
}

// Discarded returns the number of nacks without requeue.
func (b *Broker) Discarded() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discarded
}

// MaxInFlight returns the highest number of simultaneously unacknowledged deliveries.
func (b *Broker) MaxInFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxInFlight
}

// Subscribes returns how many subscriptions were opened.
func (b *Broker) Subscribes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribes
}

// Idle reports whether every message has been acknowledged.
func (b *Broker) Idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) == 0 && len(b.unacked) == 0
}

func (b *Broker) next(prefetch int) (amqp.Delivery, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 || (prefetch > 0 && len(b.unacked) >= prefetch) {
		return amqp.Delivery{}, false
	}

	m := b.queue[0]
	b.queue = b.queue[1:]
	b.nextTag++
	b.unacked[b.nextTag] = m
	if len(b.unacked) > b.maxInFlight {
		b.maxInFlight = len(b.unacked)
	}

	return amqp.Delivery{
		Acknowledger: b,
		Headers:      m.pub.Headers,
		ContentType:  m.pub.ContentType,
		DeliveryMode: m.pub.DeliveryMode,
		MessageId:    m.pub.MessageId,
		Timestamp:    m.pub.Timestamp,
		Type:         m.pub.Type,
		DeliveryTag:  b.nextTag,
		Redelivered:  m.redelivered,
		Body:         m.pub.Body,
	}, true
}

// returnToHead puts a popped but undelivered message back without marking it redelivered.
func (b *Broker) returnToHead(tag uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.unacked[tag]; ok {
		delete(b.unacked, tag)
		b.queue = append([]message{m}, b.queue...)
	}
}

func (b *Broker) requeueUnacked() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.unacked) == 0 {
		return
	}

	tags := make([]uint64, 0, len(b.unacked))
	for tag := range b.unacked {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	head := make([]message, 0, len(tags))
	for _, tag := range tags {
		m := b.unacked[tag]
		m.redelivered = true
		head = append(head, m)
		delete(b.unacked, tag)
	}
	b.queue = append(head, b.queue...)
	b.signalLocked()
}

func (b *Broker) signal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signalLocked()
}

func (b *Broker) signalLocked() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

type subscription struct {
	b        *Broker
	prefetch int
	out      chan amqp.Delivery
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func (s *subscription) Deliveries() <-chan amqp.Delivery {
	return s.out
}

func (s *subscription) Cancel() error {
	s.halt()
	return nil
}

func (s *subscription) Close() error {
	s.halt()

	s.b.mu.Lock()
	if s.b.sub == s {
		s.b.sub = nil
	}
	s.b.mu.Unlock()

	s.b.requeueUnacked()
	return nil
}

func (s *subscription) halt() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *subscription) pump() {
	defer close(s.done)
	defer close(s.out)

	for {
		d, ok := s.b.next(s.prefetch)
		if !ok {
			select {
			case <-s.b.kick:
				continue
			case <-s.stop:
				return
			}
		}

		select {
		case s.out <- d:
		case <-s.stop:
			s.b.returnToHead(d.DeliveryTag)
			return
		}
	}
}
