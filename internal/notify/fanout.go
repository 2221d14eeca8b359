package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Broadcaster is the delivery side of the fanout. Hub satisfies it.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Fanout decouples event production on the scan path from delivery to live
// subscribers. Queue appends under a short-held lock and returns
// immediately; a periodic drain swaps the pending slice and delivers
// outside the lock. The guarantee is bounded latency, not immediate
// delivery.
type Fanout struct {
	mu      sync.Mutex
	pending []Event

	hub Broadcaster
	log *logrus.Entry
}

// NewFanout creates a fanout delivering to hub.
func NewFanout(hub Broadcaster, log *logrus.Entry) *Fanout {
	return &Fanout{hub: hub, log: log}
}

// Queue enqueues an event. Safe from any goroutine; never blocks on
// delivery and never fails the caller.
func (f *Fanout) Queue(evt Event) {
	f.mu.Lock()
	f.pending = append(f.pending, evt)
	f.mu.Unlock()
}

// Run drains the queue every interval until ctx ends. Events still queued
// at shutdown are discarded; delivery is best-effort.
func (f *Fanout) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Drain()
		}
	}
}

// Drain swaps out the pending queue and delivers each event to every
// subscriber. Exported so tests and shutdown paths can force a drain.
func (f *Fanout) Drain() {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, evt := range batch {
		data, err := json.Marshal(evt)
		if err != nil {
			f.log.WithError(err).Warn("event marshal failed")
			continue
		}
		f.hub.Broadcast(data)
	}
}

// Pending returns the number of queued, undelivered events.
func (f *Fanout) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
