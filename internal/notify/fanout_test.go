package notify

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeSub struct {
	mu     sync.Mutex
	msgs   [][]byte
	fail   bool
	closed bool
}

func (s *fakeSub) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return io.ErrClosedPipe
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.msgs = append(s.msgs, cp)
	return nil
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSub) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.msgs...)
}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub(testLog())
	a, b := &fakeSub{}, &fakeSub{}
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.Count())

	hub.Broadcast([]byte(`{"hello":true}`))
	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
}

func TestHubDropsFailingSubscriber(t *testing.T) {
	hub := NewHub(testLog())
	good, bad := &fakeSub{}, &fakeSub{fail: true}
	hub.Register(good)
	hub.Register(bad)

	hub.Broadcast([]byte("x"))

	assert.Equal(t, 1, hub.Count())
	assert.True(t, bad.closed)
	assert.Len(t, good.received(), 1)

	// The survivor keeps receiving.
	hub.Broadcast([]byte("y"))
	assert.Len(t, good.received(), 2)
}

func TestHubUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(testLog())
	s := &fakeSub{}
	hub.Register(s)
	hub.Unregister(s)
	hub.Unregister(s)
	assert.Equal(t, 0, hub.Count())
}

func TestFanoutDrainDeliversInOrder(t *testing.T) {
	hub := NewHub(testLog())
	sub := &fakeSub{}
	hub.Register(sub)
	f := NewFanout(hub, testLog())

	f.Queue(Event{Action: ActionCheckIn, StudentID: 1, StudentName: "Mara"})
	f.Queue(Event{Action: ActionCheckOut, StudentID: 1, StudentName: "Mara"})
	assert.Equal(t, 2, f.Pending())

	f.Drain()
	assert.Equal(t, 0, f.Pending())

	msgs := sub.received()
	require.Len(t, msgs, 2)
	var first, second Event
	require.NoError(t, json.Unmarshal(msgs[0], &first))
	require.NoError(t, json.Unmarshal(msgs[1], &second))
	assert.Equal(t, ActionCheckIn, first.Action)
	assert.Equal(t, ActionCheckOut, second.Action)
}

func TestFanoutDrainWithNothingPending(t *testing.T) {
	f := NewFanout(NewHub(testLog()), testLog())
	f.Drain()
	assert.Equal(t, 0, f.Pending())
}

func TestFanoutRunDrainsPeriodically(t *testing.T) {
	hub := NewHub(testLog())
	sub := &fakeSub{}
	hub.Register(sub)
	f := NewFanout(hub, testLog())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx, 10*time.Millisecond)
	}()

	f.Queue(Event{Action: ActionCheckIn, StudentID: 1})
	assert.Eventually(t, func() bool {
		return len(sub.received()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestFanoutQueueIsConcurrencySafe(t *testing.T) {
	f := NewFanout(NewHub(testLog()), testLog())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				f.Queue(Event{StudentID: int64(n)})
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 200, f.Pending())
}
