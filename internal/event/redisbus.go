package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gemini-legion/legion/internal/logging"
	"github.com/gemini-legion/legion/pkg/types"
)

// RedisBus satisfies the same Bus contract as InProcessBus over Redis
// pub/sub, for the optional distributed transport spec §1/§4.1 call out
// ("single-process assumed; distributed mode is an optional back-end for
// the same interface"). One topic per process is used; EventType filtering
// happens client-side so every subscriber's ordering guarantee matches the
// in-process bus.
type RedisBus struct {
	client *redis.Client
	topic  string

	mu     sync.Mutex
	subs   []*subscription
	nextID uint64
	cancel context.CancelFunc
	closed bool
}

// NewRedisBus connects to redisURL and starts consuming topic.
func NewRedisBus(ctx context.Context, redisURL, topic string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	b := &RedisBus{client: client, topic: topic, cancel: cancel}

	pubsub := client.Subscribe(runCtx, topic)
	go b.consume(runCtx, pubsub)

	return b, nil
}

func (b *RedisBus) consume(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var e types.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				logging.Warn().Err(err).Msg("redis bus: dropping undecodable message")
				continue
			}
			b.dispatch(e)
		}
	}
}

func (b *RedisBus) dispatch(e types.Event) {
	b.mu.Lock()
	matching := make([]*subscriberQueue, 0, len(b.subs))
	for _, s := range b.subs {
		if s.all || s.eventType == e.Type {
			matching = append(matching, s.queue)
		}
	}
	b.mu.Unlock()

	for _, q := range matching {
		q.push(e)
	}
}

func (b *RedisBus) newID() uint64 {
	b.nextID++
	return b.nextID
}

// Subscribe registers fn for events of the given type only.
func (b *RedisBus) Subscribe(eventType types.EventType, fn Handler) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	sub := &subscription{id: b.newID(), eventType: eventType, queue: newSubscriberQueue()}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go sub.queue.run(fn)
	return func() { b.unsubscribe(sub.id) }
}

// SubscribeAll registers fn for every event type.
func (b *RedisBus) SubscribeAll(fn Handler) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	sub := &subscription{id: b.newID(), all: true, queue: newSubscriberQueue()}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go sub.queue.run(fn)
	return func() { b.unsubscribe(sub.id) }
}

func (b *RedisBus) unsubscribe(id uint64) {
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

// Publish stamps EventID/Timestamp if unset and publishes to the Redis
// topic; local subscribers (including on the publishing process) receive
// it back through the same consume loop as every other process.
func (b *RedisBus) Publish(ctx context.Context, e types.Event) error {
	if e.EventID == "" {
		e.EventID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.topic, data).Err()
}

// Close stops the consume loop and closes the Redis client.
func (b *RedisBus) Close() error {
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
	b.cancel()
	return b.client.Close()
}
