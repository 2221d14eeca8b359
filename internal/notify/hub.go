package notify

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"schooltrack/internal/metrics"
)

// Subscriber is the write side of a live connection. *websocket.Conn
// satisfies it.
type Subscriber interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub tracks connected subscribers and broadcasts JSON-encoded events to
// all of them. A subscriber whose delivery fails is dropped; delivery to
// the others continues.
type Hub struct {
	mu   sync.Mutex
	subs map[Subscriber]struct{}
	log  *logrus.Entry
}

// NewHub creates an empty hub.
func NewHub(log *logrus.Entry) *Hub {
	return &Hub{subs: make(map[Subscriber]struct{}), log: log}
}

// Register adds a subscriber.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	metrics.Subscribers.Inc()
}

// Unregister removes a subscriber. Safe to call for already-removed ones.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	h.mu.Unlock()
	if ok {
		metrics.Subscribers.Dec()
	}
}

// Broadcast delivers data to every subscriber outside the registration
// lock, dropping any whose write fails.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	targets := make([]Subscriber, 0, len(h.subs))
	for s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		if err := s.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.WithError(err).Debug("dropping subscriber after failed delivery")
			h.Unregister(s)
			_ = s.Close()
			metrics.SubscribersDropped.Inc()
			continue
		}
		metrics.NotificationsDelivered.Inc()
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
