package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const publishBuffer = 256

// RedisNotifier publishes notifications on a Redis pub/sub channel so that
// the API process can forward them to its SSE clients. Notify only enqueues;
// a single goroutine publishes, which keeps per-job ordering.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	queue   chan Message
	done    chan struct{}
	once    sync.Once
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	n := &RedisNotifier{
		client:  client,
		channel: channel,
		queue:   make(chan Message, publishBuffer),
		done:    make(chan struct{}),
	}
	go n.publishLoop()
	return n
}

func (n *RedisNotifier) Notify(channelID, event string, payload any) {
	if channelID == "" {
		return
	}
	msg, err := newMessage(channelID, event, payload)
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Failed to encode notification")
		return
	}

	select {
	case n.queue <- msg:
	default:
		log.Warn().Str("channel", channelID).Str("event", event).Msg("Notification queue full, dropping event")
	}
}

func (n *RedisNotifier) publishLoop() {
	defer close(n.done)
	for msg := range n.queue {
		raw, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := n.client.Publish(ctx, n.channel, raw).Err(); err != nil {
			log.Warn().Err(err).Str("event", msg.Event).Msg("Failed to publish notification")
		}
		cancel()
	}
}

// Close drains pending notifications and stops the publisher
func (n *RedisNotifier) Close() {
	n.once.Do(func() { close(n.queue) })
	<-n.done
}

// Forwarder relays messages from the Redis channel into a Hub
type Forwarder struct {
	client  *redis.Client
	channel string
}

func NewForwarder(client *redis.Client, channel string) *Forwarder {
	return &Forwarder{client: client, channel: channel}
}

// Start subscribes and forwards in the background until ctx is cancelled
func (f *Forwarder) Start(ctx context.Context, hub *Hub) error {
	sub := f.client.Subscribe(ctx, f.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					log.Warn().Err(err).Msg("Bad notification payload")
					continue
				}
				hub.Broadcast(msg)
			}
		}
	}()

	log.Info().Str("channel", f.channel).Msg("Notification forwarder started")
	return nil
}
