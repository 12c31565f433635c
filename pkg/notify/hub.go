// Package notify fans decoded messages out to push subscribers: server
// sent events, WebSocket clients and an MQTT broker.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one message pushed to subscribers.
type Event struct {
	Message string    `json:"message"`
	Time    time.Time `json:"-"`
}

// Subscriber receives events from a Hub.
type Subscriber struct {
	ID   uuid.UUID
	C    chan Event // buffered; events are dropped when it is full
	done chan struct{}
}

// Done is closed once the subscriber has been removed from its hub.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Hub fans events from one source out to any number of subscribers. Slow
// subscribers miss events rather than blocking the others.
type Hub struct {
	Buffer int
	Logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber
}

func NewHub(buffer int) *Hub {
	return &Hub{
		Buffer:      buffer,
		subscribers: make(map[uuid.UUID]*Subscriber),
	}
}

func (h *Hub) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default().With("component", "hub")
}

func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		ID:   uuid.New(),
		C:    make(chan Event, h.Buffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.subscribers[s.ID] = s
	h.mu.Unlock()
	h.logger().Debug("subscriber added", "id", s.ID, "total", h.SubscriberCount())
	return s
}

// Unsubscribe removes s and closes its Done channel. It is safe to call
// more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[s.ID]
	delete(h.subscribers, s.ID)
	h.mu.Unlock()
	if ok {
		close(s.done)
		h.logger().Debug("subscriber removed", "id", s.ID)
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish hands ev to every subscriber with room for it and reports how
// many received it.
func (h *Hub) Publish(ev Event) int {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, s := range h.subscribers {
		select {
		case s.C <- ev:
			delivered++
		default:
			h.logger().Warn("subscriber too slow, dropping event", "id", s.ID)
		}
	}
	return delivered
}

// Run publishes everything read from source until ctx is done or source
// is closed.
func (h *Hub) Run(ctx context.Context, source <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-source:
			if !ok {
				return
			}
			h.Publish(ev)
		}
	}
}
