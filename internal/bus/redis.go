package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus mirrors a local Bus's METRICS_* and ERROR_OCCURRED topics over
// Redis Pub/Sub, so a multi-instance deployment shares operational
// signals across processes. Routing-relevant topics (*_RECEIVED,
// DATA_PARSED, ROUTING_DECIDED, FORWARD_RESULT) stay local: each instance
// owns its own adapters and targets, so nothing subscribes to them here.
type RedisBus struct {
	bus    *Bus
	rdb    *redis.Client
	prefix string
	log    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// distributedTopic reports whether topic should be mirrored to Redis.
func distributedTopic(topic string) bool {
	topic = normalizeTopic(topic)
	return strings.HasPrefix(topic, TopicMetricsPrefix) || topic == TopicErrorOccurred
}

// NewRedisBus wraps b, mirroring distributed topics to Redis channels
// under prefix (default "ocx:gateway:").
func NewRedisBus(b *Bus, rdb *redis.Client, prefix string) *RedisBus {
	if prefix == "" {
		prefix = "ocx:gateway:"
	}
	return &RedisBus{bus: b, rdb: rdb, prefix: prefix, log: slog.Default().With("component", "redis_bus")}
}

// Start subscribes b to its own distributed topics (mirroring local
// publishes out to Redis) and to this instance's Redis channel pattern
// (mirroring remote publishes into b). Stop with Close.
func (r *RedisBus) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.bus.Subscribe(TopicMetricsPrefix+"*", r.forwardOutbound)
	r.bus.Subscribe(TopicErrorOccurred, r.forwardOutbound)

	sub := r.rdb.PSubscribe(ctx, r.prefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		return err
	}

	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for msg := range ch {
			var env struct {
				Topic   string `json:"topic"`
				Payload any    `json:"payload"`
				Source  string `json:"source"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("redis bus: invalid envelope", "channel", msg.Channel, "error", err)
				continue
			}
			r.bus.Publish(env.Topic, env.Payload, "redis:"+env.Source)
		}
	}()
	return nil
}

// forwardOutbound republishes a locally-originated distributed-topic
// event to Redis. Events that arrived from Redis in the first place
// (source prefixed "redis:") are not re-mirrored, avoiding an echo loop
// between instances.
func (r *RedisBus) forwardOutbound(payload any, topic, source string) {
	if strings.HasPrefix(source, "redis:") {
		return
	}
	if err := r.PublishRemote(topic, payload, source); err != nil {
		r.log.Warn("redis bus: publish failed", "topic", topic, "error", err)
	}
}

// PublishRemote publishes payload to topic's Redis channel directly,
// without touching the local bus.
func (r *RedisBus) PublishRemote(topic string, payload any, source string) error {
	data, err := json.Marshal(map[string]any{"topic": topic, "payload": payload, "source": source})
	if err != nil {
		return err
	}
	return r.rdb.Publish(context.Background(), r.prefix+normalizeTopic(topic), data).Err()
}

// Close stops the Redis subscription goroutine started by Start.
func (r *RedisBus) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
