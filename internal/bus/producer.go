package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Message is one serialized event on a topic.
type Message struct {
	Topic     string
	Key       string // partition key, the curve or user ID
	Value     []byte
	Timestamp time.Time
}

// Producer publishes events for downstream consumers (indexers, the cashback
// pipeline, the websocket stream). This is an interface so the in-process
// implementation can be swapped for a brokered one without touching callers.
type Producer interface {
	// Publish sends a Message.
	Publish(ctx context.Context, msg Message) error
	// PublishJSON marshals value as JSON and publishes it.
	PublishJSON(ctx context.Context, topic, key string, value interface{}) error
	// Close shuts down the producer.
	Close()
}

// MemoryBus is an in-process Producer with per-topic fan-out to subscribers.
// Delivery is non-blocking: a subscriber that cannot keep up loses messages
// rather than stalling the swap path, and drops are counted.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message // topic -> subscriber channels
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan Message)}
}

// Subscribe returns a channel receiving every future message on topic.
// buffer bounds how far the subscriber may lag before messages are dropped.
func (b *MemoryBus) Subscribe(topic string, buffer int) <-chan Message {
	ch := make(chan Message, buffer)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	return ch
}

// Publish implements Producer.
func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus closed")
	}

	b.published.Add(1)
	for _, ch := range b.subs[msg.Topic] {
		select {
		case ch <- msg:
		default:
			b.dropped.Add(1)
			log.Warn().
				Str("topic", msg.Topic).
				Str("key", msg.Key).
				Msg("Bus subscriber lagging, message dropped")
		}
	}
	return nil
}

// PublishJSON implements Producer.
func (b *MemoryBus) PublishJSON(ctx context.Context, topic, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.Publish(ctx, Message{Topic: topic, Key: key, Value: data})
}

// Close implements Producer. Subscriber channels are closed so consumers
// terminate their range loops.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
}

// Stats returns lifetime publish and drop counters.
func (b *MemoryBus) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}

var _ Producer = (*MemoryBus)(nil)
