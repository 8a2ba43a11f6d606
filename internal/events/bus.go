// Package events is the in-process message bus between transport adapters and
// the dispatcher.
//
// Two kinds of subscription exist. An exclusive subscription is the single
// consumer of a topic: Publish blocks until it accepts the event, so nothing is
// lost between ingress and dispatch. Observer subscriptions (operator feeds)
// never block producers; a slow observer simply misses events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTopicClaimed = errors.New("topic already has an exclusive subscriber")
	ErrEmptyTopic   = errors.New("topic is empty")
)

type Event struct {
	ID    int64     `json:"id"`
	Topic string    `json:"topic"`
	At    time.Time `json:"at"`
	Data  []byte    `json:"data"`
}

// Subscription is a registration on a Bus. Events arrive on C until
// Unsubscribe is called, after which Done is closed. C itself is never closed.
type Subscription struct {
	C <-chan Event

	ch        chan Event
	topic     string
	exclusive bool
	id        int
	bus       *Bus
	done      chan struct{}
	once      sync.Once
}

// Topic returns the subscribed topic ("" for all topics).
func (s *Subscription) Topic() string { return s.topic }

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe releases the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
}

// Bus is an in-memory topic bus with a small ring buffer for late readers.
type Bus struct {
	nextID atomic.Int64

	mu      sync.Mutex
	ring    []Event
	start   int
	size    int
	subs    map[int]*Subscription
	claimed map[string]int
	nextSub int
}

func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 100
	}
	return &Bus{
		ring:    make([]Event, capacity),
		subs:    make(map[int]*Subscription),
		claimed: make(map[string]int),
	}
}

// Publish stamps data as an event on topic and delivers it. It returns the
// event ID, or ctx.Err() if an exclusive subscriber's buffer stayed full until
// ctx ended. An event that fits the buffer is delivered even when ctx is
// already done.
func (b *Bus) Publish(ctx context.Context, topic string, data []byte) (int64, error) {
	if topic == "" {
		return 0, ErrEmptyTopic
	}
	ev := Event{
		ID:    b.nextID.Add(1),
		Topic: topic,
		At:    time.Now().UTC(),
		Data:  append([]byte(nil), data...),
	}

	b.mu.Lock()
	b.pushLocked(ev)
	targets := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic == "" || s.topic == topic {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		if !s.exclusive {
			select {
			case s.ch <- ev:
			default:
			}
			continue
		}
		// A free slot wins over an expired ctx.
		select {
		case s.ch <- ev:
			continue
		default:
		}
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-ctx.Done():
			return ev.ID, ctx.Err()
		}
	}
	return ev.ID, nil
}

// PublishJSON marshals v and publishes it.
func (b *Bus) PublishJSON(ctx context.Context, topic string, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return b.Publish(ctx, topic, data)
}

// Subscribe registers an observer for topic ("" observes every topic).
func (b *Bus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(topic, false, 128)
}

// SubscribeExclusive registers the single consumer of topic.
func (b *Bus) SubscribeExclusive(topic string) (*Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.claimed[topic]; taken {
		return nil, fmt.Errorf("%w: %s", ErrTopicClaimed, topic)
	}
	s := b.addLocked(topic, true, 64)
	b.claimed[topic] = s.id
	return s, nil
}

// Subscribers returns the number of live subscriptions on topic, counting
// wildcard observers.
func (b *Bus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if s.topic == "" || s.topic == topic {
			n++
		}
	}
	return n
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (b *Bus) SnapshotSince(lastID int64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, 0, b.size)
	for i := 0; i < b.size; i++ {
		ev := b.ring[(b.start+i)%len(b.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (b *Bus) addLocked(topic string, exclusive bool, buffer int) *Subscription {
	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, buffer)
	s := &Subscription{
		C:         ch,
		ch:        ch,
		topic:     topic,
		exclusive: exclusive,
		id:        id,
		bus:       b,
		done:      make(chan struct{}),
	}
	b.subs[id] = s
	return s
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s.id)
	if s.exclusive && b.claimed[s.topic] == s.id {
		delete(b.claimed, s.topic)
	}
}

func (b *Bus) pushLocked(ev Event) {
	capacity := len(b.ring)
	if capacity == 0 {
		return
	}

	if b.size < capacity {
		idx := (b.start + b.size) % capacity
		b.ring[idx] = ev
		b.size++
		return
	}

	// Overwrite oldest.
	b.ring[b.start] = ev
	b.start = (b.start + 1) % capacity
}
