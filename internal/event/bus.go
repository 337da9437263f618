// Package event provides the Event Bus (C1): pub/sub with typed events,
// ordered per-subscriber delivery, at-least-once delivery, and a pluggable
// distributed transport behind the same Bus interface.
package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"

	"github.com/gemini-legion/legion/internal/logging"
	"github.com/gemini-legion/legion/pkg/types"
)

// Handler receives a published Event. A handler that panics is recovered
// and logged with the event id; its subscription stays active (spec §4.1
// failure policy: log and skip, no auto-retry).
type Handler func(types.Event)

// Bus is the Event Bus contract: Publish/Subscribe/Unsubscribe plus the
// per-subscriber ordering and isolation guarantees of spec §4.1.
type Bus interface {
	Publish(ctx context.Context, e types.Event) error
	Subscribe(eventType types.EventType, fn Handler) (unsubscribe func())
	SubscribeAll(fn Handler) (unsubscribe func())
	Close() error
}

// subscriberQueue is a per-subscriber FIFO: Publish appends without
// blocking on handler work; a single dedicated goroutine drains it,
// preserving per-subscriber delivery order.
type subscriberQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []types.Event
	closed bool
}

func newSubscriberQueue() *subscriberQueue {
	q := &subscriberQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *subscriberQueue) push(e types.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *subscriberQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// run drains the queue until closed and drained, calling fn for each event
// in order. Runs on its own goroutine, one per subscription.
func (q *subscriberQueue) run(fn Handler) {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		e := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		deliver(fn, e)
	}
}

func deliver(fn Handler, e types.Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("eventID", e.EventID).
				Str("eventType", string(e.Type)).
				Interface("panic", r).
				Msg("event handler panicked, subscription remains active")
		}
	}()
	fn(e)
}

type subscription struct {
	id        uint64
	eventType types.EventType // zero value means "all"
	all       bool
	queue     *subscriberQueue
}

// InProcessBus is the default Bus implementation: direct, type-preserving
// dispatch backed by a watermill gochannel for future middleware/routing
// hooks, per the teacher's original design.
type InProcessBus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
	closed bool

	pubsub *gochannel.GoChannel
}

// NewInProcessBus constructs a ready-to-use in-process Bus.
func NewInProcessBus() *InProcessBus {
	return &InProcessBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256, Persistent: false},
			watermill.NopLogger{},
		),
	}
}

func (b *InProcessBus) newID() uint64 { return atomic.AddUint64(&b.nextID, 1) }

// Subscribe registers fn for events of the given type only.
func (b *InProcessBus) Subscribe(eventType types.EventType, fn Handler) func() {
	sub := &subscription{id: b.newID(), eventType: eventType, queue: newSubscriberQueue()}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go sub.queue.run(fn)
	return func() { b.unsubscribe(sub.id) }
}

// SubscribeAll registers fn for every event type.
func (b *InProcessBus) SubscribeAll(fn Handler) func() {
	sub := &subscription{id: b.newID(), all: true, queue: newSubscriberQueue()}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go sub.queue.run(fn)
	return func() { b.unsubscribe(sub.id) }
}

func (b *InProcessBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			s.queue.close()
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish stamps EventID/Timestamp if unset and fans the event out
// to every matching subscription's queue. Never blocks on handler work.
func (b *InProcessBus) Publish(_ context.Context, e types.Event) error {
	if e.EventID == "" {
		e.EventID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	matching := make([]*subscriberQueue, 0, len(b.subs))
	for _, s := range b.subs {
		if s.all || s.eventType == e.Type {
			matching = append(matching, s.queue)
		}
	}
	b.mu.RUnlock()

	for _, q := range matching {
		q.push(e)
	}
	return nil
}

// Close stops accepting new events and releases the watermill pubsub.
func (b *InProcessBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.queue.close()
	}
	return b.pubsub.Close()
}

// PubSub exposes the underlying watermill GoChannel for advanced use —
// middleware, routing, or wiring to a distributed backend.
func (b *InProcessBus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
