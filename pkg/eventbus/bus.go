// Package eventbus is an in-process publish/subscribe bus keyed by topic.
package eventbus

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultQueueSize = 256

type Handler func(event interface{})

type Option func(*Subscription)

// WithBlocking delivers events to the handler on a dedicated goroutine so a
// slow handler never stalls the publisher. Delivery order is preserved.
func WithBlocking() Option {
	return func(s *Subscription) {
		s.blocking = true
	}
}

func WithQueueSize(size int) Option {
	return func(s *Subscription) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

type Subscription struct {
	bus     *Bus
	topic   string
	handler Handler

	blocking  bool
	queueSize int
	queue     chan interface{}
	done      chan struct{}
	once      sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		if s.blocking {
			close(s.queue)
			<-s.done
		}
	})
}

func (s *Subscription) deliver(event interface{}) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.logger.WithFields(logrus.Fields{"topic": s.topic, "panic": r}).Error("Event handler panicked")
		}
	}()

	s.handler(event)
}

func (s *Subscription) loop() {
	defer close(s.done)

	for event := range s.queue {
		s.deliver(event)
	}
}

// Bus delivers events to subscribers of a topic. Non-blocking subscribers are
// invoked inline by Publish in registration order.
type Bus struct {
	logger logrus.FieldLogger

	mu     sync.RWMutex
	subs   map[string][]*Subscription
	closed bool
}

func New(logger logrus.FieldLogger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[string][]*Subscription),
	}
}

func (b *Bus) Subscribe(topic string, handler Handler, opts ...Option) *Subscription {
	s := &Subscription{
		bus:       b,
		topic:     topic,
		handler:   handler,
		queueSize: defaultQueueSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.blocking {
		s.queue = make(chan interface{}, s.queueSize)
		s.done = make(chan struct{})
		go s.loop()
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	return s
}

func (b *Bus) Publish(topic string, event interface{}) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.logger.WithField("topic", topic).Warn("Dropping event published to closed bus")
		return
	}
	subs := make([]*Subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	for _, s := range subs {
		if s.blocking {
			s.enqueue(event)
			continue
		}
		s.deliver(event)
	}
}

// enqueue may block when the queue is full: events are never dropped.
func (s *Subscription) enqueue(event interface{}) {
	defer func() {
		// queue closed by a concurrent Unsubscribe
		_ = recover()
	}()

	s.queue <- event
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[s.topic]
	for i, sub := range subs {
		if sub == s {
			b.subs[s.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

// Close stops all blocking subscribers after they drain their queues.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.subs = make(map[string][]*Subscription)
	b.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}
