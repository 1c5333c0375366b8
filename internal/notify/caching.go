package notify

import (
	"context"
	"time"

	"bulkload/internal/cache"

	"github.com/rs/zerolog/log"
)

type jobEvent interface {
	EventJobID() string
}

// CachingNotifier records the latest event of every job in a cache before
// passing it on, so progress can be polled without a live session
type CachingNotifier struct {
	next  Notifier
	cache cache.Cache
	ttl   time.Duration
}

func NewCachingNotifier(next Notifier, c cache.Cache, ttl time.Duration) *CachingNotifier {
	if next == nil {
		next = NullNotifier{}
	}
	return &CachingNotifier{next: next, cache: c, ttl: ttl}
}

func (n *CachingNotifier) Notify(channelID, event string, payload any) {
	if ev, ok := payload.(jobEvent); ok && ev.EventJobID() != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := cache.SetJSON(ctx, n.cache, cache.ProgressKey(ev.EventJobID()), payload, n.ttl); err != nil {
			log.Warn().Err(err).Str("jobId", ev.EventJobID()).Msg("Failed to cache job progress")
		}
		cancel()
	}
	n.next.Notify(channelID, event, payload)
}
