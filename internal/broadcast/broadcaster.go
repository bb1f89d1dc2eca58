// Package broadcast fans published values out to any number of subscribers
// and replays the most recent ones to each new subscriber.
package broadcast

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"rewardo/internal/adapters/observability"
)

const (
	DefaultReplay = 10
	DefaultBuffer = 64
)

type Broadcaster[T any] struct {
	mu     sync.Mutex
	ring   []T
	head   int // next write position
	size   int
	subs   map[uint64]chan T
	nextID uint64
	buffer int
}

// New returns a Broadcaster keeping the last replay values. buffer is the
// per-subscriber channel capacity and is raised to replay when smaller.
func New[T any](replay, buffer int) *Broadcaster[T] {
	if replay <= 0 {
		replay = DefaultReplay
	}
	if buffer < replay {
		buffer = replay
	}
	return &Broadcaster[T]{
		ring:   make([]T, replay),
		subs:   make(map[uint64]chan T),
		buffer: buffer,
	}
}

// Publish records v for replay and offers it to every subscriber without
// blocking. A subscriber whose buffer is full misses v.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring[b.head] = v
	b.head = (b.head + 1) % len(b.ring)
	if b.size < len(b.ring) {
		b.size++
	}

	for id, ch := range b.subs {
		select {
		case ch <- v:
		default:
			observability.BroadcastDropped.Inc()
			log.Warn().Uint64("subscriber", id).Msg("subscriber buffer full, event dropped")
		}
	}
}

// Subscribe returns a channel that first yields the retained values, oldest
// first, then every value published afterwards. The channel is closed once
// ctx is done.
func (b *Broadcaster[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, b.buffer)

	b.mu.Lock()
	for _, v := range b.recentLocked() {
		ch <- v // buffer >= len(ring)
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	observability.BroadcastSubscribers.Inc()
	log.Info().Uint64("subscriber", id).Msg("new subscription to change events")

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
		observability.BroadcastSubscribers.Dec()
		log.Info().Uint64("subscriber", id).Msg("subscription to change events cancelled")
	}()
	return ch
}

// Recent returns the retained values, oldest first.
func (b *Broadcaster[T]) Recent() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recentLocked()
}

func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster[T]) recentLocked() []T {
	out := make([]T, 0, b.size)
	start := (b.head - b.size + len(b.ring)) % len(b.ring)
	for i := 0; i < b.size; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}
