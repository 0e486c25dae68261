// Package realtime carries "something changed" signals between the code that
// writes logs and the feeds that re-publish snapshots. A notification holds
// no payload: subscribers always reload the full state after one arrives, so
// signals can be coalesced or dropped without losing correctness.
//
// Hub works inside a single process. RedisBroker and NATSBroker fan out
// through Redis pub/sub or NATS subjects so several server instances stay
// in sync.
package realtime

import (
	"context"
	"sync"
)

// Broker publishes and delivers change notifications per topic.
type Broker interface {
	// Publish signals every current subscriber of topic.
	Publish(ctx context.Context, topic string) error

	// Subscribe returns a channel that receives a value after each publish
	// on topic. Pending signals are coalesced into one. The channel is
	// closed once ctx is cancelled.
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, error)
}

// Hub is the in-process Broker.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[chan struct{}]struct{}
}

// NewHub creates an empty in-process hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[chan struct{}]struct{})}
}

// Publish signals all subscribers of topic without blocking.
func (h *Hub) Publish(_ context.Context, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.topics[topic] {
		signal(ch)
	}
	return nil
}

// Subscribe registers a subscriber that lives until ctx is done.
func (h *Hub) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan struct{}, 1)

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[chan struct{}]struct{})
		h.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
		close(ch)
		h.mu.Unlock()
	}()

	return ch, nil
}

// Subscribers returns the number of live subscribers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// signal does a non-blocking send. A full buffer already holds a pending
// signal, which is all a subscriber needs.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
