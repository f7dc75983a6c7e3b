// Package bus implements the gateway's in-process publish/subscribe event
// bus: topic-keyed subscriber lists with shell-style wildcard matching,
// thread-safe snapshotting, and subscriber-failure isolation.
package bus

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Handler receives a published payload along with the topic it matched
// under and an optional source label.
type Handler func(payload any, topic string, source string)

type subscriber struct {
	id      string
	topic   string // canonical uppercase, possibly containing '*'
	handler Handler
}

// Bus is a thread-safe, in-memory topic pub/sub bus. The zero value is not
// usable; construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber // topic -> subscribers, in registration order
	byID        map[string]*subscriber
	seq         int
	logger      *slog.Logger
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]*subscriber),
		byID:        make(map[string]*subscriber),
		logger:      slog.Default().With("component", "bus"),
	}
}

func normalizeTopic(topic string) string {
	return strings.ToUpper(strings.TrimSpace(topic))
}

// Subscribe registers handler under topic (normalized to uppercase) and
// returns a subscription id usable with Unsubscribe. A topic containing
// '*' is matched as a shell-style glob against published topics.
func (b *Bus) Subscribe(topic string, handler Handler) string {
	topic = normalizeTopic(topic)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := subscriptionID(b.seq)
	sub := &subscriber{id: id, topic: topic, handler: handler}
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.byID[id] = sub

	b.logger.Debug("subscribed", "topic", topic, "subscription_id", id)
	return id
}

// On is a decorator-style convenience for Subscribe: it exists so call
// sites can register a bound method or closure the same way the Python
// EventSubscriber decorator did, returning the same subscription id.
func (b *Bus) On(topic string, handler Handler) string {
	return b.Subscribe(topic, handler)
}

// Unsubscribe removes the subscription identified by id. Returns false if
// no such subscription exists.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.byID[id]
	if !ok {
		return false
	}
	delete(b.byID, id)

	list := b.subscribers[sub.topic]
	for i, s := range list {
		if s.id == id {
			b.subscribers[sub.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subscribers[sub.topic]) == 0 {
		delete(b.subscribers, sub.topic)
	}
	return true
}

// Publish delivers payload to every subscriber whose registered topic
// either equals topic exactly or matches it as a wildcard glob. Handlers
// run synchronously, outside the bus's internal lock, in registration
// order; a panic in one handler is recovered and logged and does not
// prevent the remaining handlers from running. The returned count
// includes handlers that panicked.
func (b *Bus) Publish(topic string, payload any, source string) int {
	topic = normalizeTopic(topic)

	matched := b.snapshotMatching(topic)

	count := 0
	for _, sub := range matched {
		b.invoke(sub, payload, topic, source)
		count++
	}

	if count > 0 {
		b.logger.Debug("published", "topic", topic, "delivered", count, "source", source)
	}
	return count
}

func (b *Bus) snapshotMatching(topic string) []*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []*subscriber
	if exact, ok := b.subscribers[topic]; ok {
		matched = append(matched, exact...)
	}
	for subTopic, subs := range b.subscribers {
		if subTopic == topic {
			continue
		}
		if strings.Contains(subTopic, "*") {
			if ok, _ := filepath.Match(subTopic, topic); ok {
				matched = append(matched, subs...)
			}
		}
	}
	return matched
}

func (b *Bus) invoke(sub *subscriber, payload any, topic, source string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked", "subscription_id", sub.id, "topic", topic, "panic", r)
		}
	}()
	sub.handler(payload, topic, source)
}

// SubscriberCount returns the number of subscribers, either across every
// topic (topic == "") or for a single topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if topic == "" {
		total := 0
		for _, subs := range b.subscribers {
			total += len(subs)
		}
		return total
	}
	return len(b.subscribers[normalizeTopic(topic)])
}

// Topics returns every topic with at least one active subscriber.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.subscribers))
	for t := range b.subscribers {
		topics = append(topics, t)
	}
	return topics
}

// Reset removes all subscriptions. Intended for tests only.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string][]*subscriber)
	b.byID = make(map[string]*subscriber)
}

func subscriptionID(seq int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	if seq == 0 {
		return "sub-0"
	}
	buf := make([]byte, 0, 12)
	n := seq
	for n > 0 {
		buf = append([]byte{alphabet[n%36]}, buf...)
		n /= 36
	}
	return "sub-" + string(buf)
}
