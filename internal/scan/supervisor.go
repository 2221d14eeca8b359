package scan

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DeviceOwner is the gateway lifecycle the supervisor drives.
// *reader.Gateway satisfies it.
type DeviceOwner interface {
	Open() error
	CloseDevice()
	Reset() bool
}

type state int

const (
	stateClosed state = iota
	stateOpening
	stateOpen
	statePolling
)

func (s state) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpening:
		return "opening"
	case stateOpen:
		return "open"
	case statePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// Supervisor owns the reader lifecycle for the lifetime of the process:
// closed → opening → open → polling, back to closed on device failure, with
// reset and backoff between attempts. It never terminates on a bad read;
// only context cancellation stops it.
type Supervisor struct {
	gw     DeviceOwner
	poller *Poller
	log    *logrus.Entry

	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewSupervisor creates a supervisor.
func NewSupervisor(gw DeviceOwner, poller *Poller, backoff time.Duration, log *logrus.Entry) *Supervisor {
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	return &Supervisor{
		gw:          gw,
		poller:      poller,
		log:         log,
		backoffBase: backoff,
		backoffMax:  30 * time.Second,
	}
}

// Run drives the state machine until ctx is cancelled. Intended to run on
// its own goroutine; the caller joins it via a done channel at shutdown.
func (s *Supervisor) Run(ctx context.Context) {
	st := stateClosed
	backoff := s.backoffBase

	for ctx.Err() == nil {
		switch st {
		case stateClosed:
			// Best-effort power cycle before reopening; failure means
			// "retry later", never fatal.
			s.gw.Reset()
			st = stateOpening

		case stateOpening:
			if err := s.gw.Open(); err != nil {
				s.log.WithError(err).WithField("backoff", backoff).Warn("waiting for reader")
				s.sleep(ctx, backoff)
				backoff = s.grow(backoff)
				st = stateClosed
				continue
			}
			backoff = s.backoffBase
			s.poller.ResetDebounce()
			st = stateOpen

		case stateOpen:
			s.log.Info("reader opened, polling")
			st = statePolling

		case statePolling:
			if err := s.poller.cycle(ctx); err != nil {
				s.log.WithError(err).Error("device failure, closing handle")
				s.gw.CloseDevice()
				s.sleep(ctx, time.Second)
				st = stateClosed
			}
		}
	}
	s.log.Info("scan supervisor stopped")
}

func (s *Supervisor) grow(d time.Duration) time.Duration {
	d *= 2
	if d > s.backoffMax {
		d = s.backoffMax
	}
	return d
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
