package reader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"schooltrack/internal/metrics"
)

var (
	// ErrBusy means the guard could not be acquired within the timeout.
	// Callers back off and retry later.
	ErrBusy = errors.New("reader busy")
	// ErrUnavailable means no device is currently open.
	ErrUnavailable = errors.New("reader not available")
	// ErrNoTag means the deadline elapsed without a tag presentation.
	ErrNoTag = errors.New("no tag presented within deadline")
	// ErrNotNDEF means the presented tag has no NDEF record area.
	ErrNotNDEF = errors.New("tag is not NDEF-compatible")
)

// Options bound a Connect call. GuardTimeout limits how long the caller
// waits for exclusive access; Deadline limits how long the reader waits for
// a tag once access is held.
type Options struct {
	GuardTimeout time.Duration
	Deadline     time.Duration
}

// Handler is invoked for each presented tag while a Connect call holds the
// device. Returning true stops the wait.
type Handler func(Tag) bool

// Gateway serializes all access to the single physical reader. Every
// acquirer goes through the same capacity-one guard with a bounded timeout,
// whether it is the poll loop or an API-driven write.
type Gateway struct {
	openDevice func() (Device, error)
	resets     []func() error

	guard chan struct{}

	mu  sync.Mutex
	dev Device

	log *logrus.Entry
}

// New creates a Gateway for the given config. The device is not opened
// until Open is called; the supervisor owns the open/close lifecycle.
func New(cfg Config, log *logrus.Entry) *Gateway {
	g := &Gateway{
		openDevice: func() (Device, error) { return Open(cfg) },
		guard:      make(chan struct{}, 1),
		log:        log,
	}
	g.resets = defaultResets(cfg)
	return g
}

// Open opens the underlying device. Safe to call again after CloseDevice.
func (g *Gateway) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dev != nil {
		return nil
	}
	dev, err := g.openDevice()
	if err != nil {
		return err
	}
	g.dev = dev
	return nil
}

// CloseDevice closes and forgets the device handle. Used by the supervisor
// when the handle has gone bad, before attempting Reset and reopen.
func (g *Gateway) CloseDevice() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dev != nil {
		if err := g.dev.Close(); err != nil {
			g.log.WithError(err).Debug("device close failed")
		}
		g.dev = nil
	}
}

// Connected reports whether a device handle is currently open.
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dev != nil
}

// Connect blocks until handler reports a presented tag and returns true, or
// the deadline elapses. Access is funneled through the exclusive guard; if
// the guard cannot be acquired within opts.GuardTimeout the call fails with
// ErrBusy and the caller must back off rather than block.
func (g *Gateway) Connect(ctx context.Context, opts Options, handler Handler) error {
	release, err := g.acquire(opts.GuardTimeout)
	if err != nil {
		metrics.ReaderBusy.Inc()
		return err
	}
	defer release()

	g.mu.Lock()
	dev := g.dev
	g.mu.Unlock()
	if dev == nil {
		return ErrUnavailable
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Deadline)
	defer cancel()

	for {
		tag, err := dev.WaitForTag(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return ErrNoTag
			}
			return err
		}
		stop := handler(tag)
		if err := tag.Close(); err != nil {
			g.log.WithError(err).Debug("tag close failed")
		}
		if stop {
			return nil
		}
	}
}

func (g *Gateway) acquire(timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case g.guard <- struct{}{}:
		return func() { <-g.guard }, nil
	case <-timer.C:
		return nil, ErrBusy
	}
}

// Reset power-cycles the reader, best-effort. Each strategy is tried in
// order and per-attempt failures are swallowed; the return value reports
// whether any attempt succeeded. Callers treat false as "retry later".
func (g *Gateway) Reset() bool {
	metrics.ReaderResets.Inc()
	for _, reset := range g.resets {
		if err := reset(); err != nil {
			g.log.WithError(err).Debug("reset attempt failed")
			continue
		}
		return true
	}
	return false
}
