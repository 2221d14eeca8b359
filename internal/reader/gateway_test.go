package reader

import (
	"context"
	"errors"
	"io"
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

func newTestGateway(dev Device) *Gateway {
	g := &Gateway{
		openDevice: func() (Device, error) { return dev, nil },
		guard:      make(chan struct{}, 1),
		log:        testLog(),
	}
	g.dev = dev
	return g
}

func TestConnectWithoutDevice(t *testing.T) {
	g := newTestGateway(nil)
	err := g.Connect(context.Background(), Options{GuardTimeout: 10 * time.Millisecond, Deadline: 10 * time.Millisecond}, func(Tag) bool { return true })
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestConnectNoTagWithinDeadline(t *testing.T) {
	g := newTestGateway(NewMock())
	err := g.Connect(context.Background(), Options{GuardTimeout: 10 * time.Millisecond, Deadline: 30 * time.Millisecond}, func(Tag) bool { return true })
	assert.ErrorIs(t, err, ErrNoTag)
}

func TestConnectDeliversTagAndClosesIt(t *testing.T) {
	mock := NewMock()
	tag := &MockTag{ID: "04aabbcc"}
	mock.Present(tag)
	g := newTestGateway(mock)

	var seen string
	err := g.Connect(context.Background(), Options{GuardTimeout: 10 * time.Millisecond, Deadline: time.Second}, func(t Tag) bool {
		seen = t.UID()
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, "04aabbcc", seen)
	assert.True(t, tag.Closed)
}

func TestConnectHandlerCanWaitForNextTag(t *testing.T) {
	mock := NewMock()
	mock.Present(&MockTag{ID: "first"})
	mock.Present(&MockTag{ID: "second"})
	g := newTestGateway(mock)

	var seen []string
	err := g.Connect(context.Background(), Options{GuardTimeout: 10 * time.Millisecond, Deadline: time.Second}, func(t Tag) bool {
		seen = append(seen, t.UID())
		return len(seen) == 2
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestConnectGuardIsExclusive(t *testing.T) {
	mock := NewMock()
	g := newTestGateway(mock)

	// Occupy the guard directly; a second caller must fail fast with
	// ErrBusy instead of blocking.
	g.guard <- struct{}{}
	err := g.Connect(context.Background(), Options{GuardTimeout: 20 * time.Millisecond, Deadline: time.Second}, func(Tag) bool { return true })
	assert.ErrorIs(t, err, ErrBusy)

	<-g.guard
	mock.Present(&MockTag{ID: "04aa"})
	err = g.Connect(context.Background(), Options{GuardTimeout: 20 * time.Millisecond, Deadline: time.Second}, func(Tag) bool { return true })
	assert.NoError(t, err)
}

func TestConnectConcurrentCallersOneWins(t *testing.T) {
	mock := NewMock()
	mock.Present(&MockTag{ID: "04aa"})
	g := newTestGateway(mock)

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- g.Connect(context.Background(), Options{GuardTimeout: 50 * time.Millisecond, Deadline: 5 * time.Second}, func(Tag) bool {
			close(holding)
			<-release
			return true
		})
	}()

	<-holding
	err := g.Connect(context.Background(), Options{GuardTimeout: 30 * time.Millisecond, Deadline: time.Second}, func(Tag) bool { return true })
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
}

func TestConnectCanceledContext(t *testing.T) {
	g := newTestGateway(NewMock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Connect(ctx, Options{GuardTimeout: 10 * time.Millisecond, Deadline: time.Second}, func(Tag) bool { return true })
	assert.ErrorIs(t, err, ErrNoTag)
}

func TestResetStopsAtFirstSuccess(t *testing.T) {
	var order []string
	g := newTestGateway(nil)
	g.resets = []func() error{
		func() error { order = append(order, "usb"); return errors.New("no permission") },
		func() error { order = append(order, "pcsc"); return nil },
		func() error { order = append(order, "never"); return nil },
	}

	assert.True(t, g.Reset())
	assert.Equal(t, []string{"usb", "pcsc"}, order)
}

func TestResetAllStrategiesFail(t *testing.T) {
	g := newTestGateway(nil)
	g.resets = []func() error{
		func() error { return errors.New("one") },
		func() error { return errors.New("two") },
	}
	assert.False(t, g.Reset())
}

func TestResetWithoutStrategies(t *testing.T) {
	g := newTestGateway(nil)
	g.resets = nil
	assert.False(t, g.Reset())
}

func TestOpenIsIdempotentWhileOpen(t *testing.T) {
	opened := 0
	g := &Gateway{
		openDevice: func() (Device, error) { opened++; return NewMock(), nil },
		guard:      make(chan struct{}, 1),
		log:        testLog(),
	}

	require.NoError(t, g.Open())
	require.NoError(t, g.Open())
	assert.Equal(t, 1, opened)
	assert.True(t, g.Connected())

	g.CloseDevice()
	assert.False(t, g.Connected())
	require.NoError(t, g.Open())
	assert.Equal(t, 2, opened)
}
