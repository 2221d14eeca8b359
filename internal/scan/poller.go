package scan

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"schooltrack/internal/metrics"
	"schooltrack/internal/reader"
	"schooltrack/internal/tagcodec"
)

// Connector is the reader access the poller needs. *reader.Gateway
// satisfies it.
type Connector interface {
	Connect(ctx context.Context, opts reader.Options, handler reader.Handler) error
}

// TagProcessor consumes decoded payloads. *Processor satisfies it.
type TagProcessor interface {
	Process(ctx context.Context, payload, uid string) error
}

// Poller continuously drives the reader so any presented tag is detected
// within a bounded interval, without starving other callers that need
// momentary exclusive access.
type Poller struct {
	gw   Connector
	proc TagProcessor
	log  *logrus.Entry

	pollPeriod   time.Duration
	guardTimeout time.Duration
	yield        time.Duration

	// lastUID is the hardware identifier of the most recently fully
	// processed tag. A tag left sitting on the reader presents the same
	// uid every cycle and must not re-toggle attendance.
	lastUID string
}

// NewPoller creates a poller.
func NewPoller(gw Connector, proc TagProcessor, pollPeriod, guardTimeout time.Duration, log *logrus.Entry) *Poller {
	if pollPeriod <= 0 {
		pollPeriod = 2 * time.Second
	}
	if guardTimeout <= 0 {
		guardTimeout = 5 * time.Second
	}
	return &Poller{
		gw:           gw,
		proc:         proc,
		log:          log,
		pollPeriod:   pollPeriod,
		guardTimeout: guardTimeout,
		yield:        100 * time.Millisecond,
	}
}

// ResetDebounce clears the duplicate-presentation state. Called when the
// device is reopened; the resting tag, if any, will be processed once more.
func (p *Poller) ResetDebounce() {
	p.lastUID = ""
}

type presentation struct {
	uid       string
	payload   string
	reason    string
	duplicate bool
}

// cycle runs one poll iteration: acquire the guard, wait for a tag for at
// most pollPeriod, process what was presented, yield. Guard contention and
// tagless cycles are normal; only device-level failures are returned, for
// the supervisor to handle.
func (p *Poller) cycle(ctx context.Context) error {
	var pres *presentation
	err := p.gw.Connect(ctx, reader.Options{
		GuardTimeout: p.guardTimeout,
		Deadline:     p.pollPeriod,
	}, func(t reader.Tag) bool {
		pr := presentation{uid: t.UID()}
		if pr.uid != "" && pr.uid == p.lastUID {
			pr.duplicate = true
		} else {
			pr.payload, pr.reason = tagcodec.Decode(t)
		}
		pres = &pr
		return true
	})

	switch {
	case errors.Is(err, reader.ErrBusy):
		p.log.Debug("reader guard busy, skipping cycle")
	case errors.Is(err, reader.ErrNoTag):
		// Nothing presented this cycle.
	case errors.Is(err, reader.ErrUnavailable):
		return err
	case err != nil:
		return err
	default:
		if pres != nil {
			p.handle(ctx, pres)
		}
	}

	p.sleep(ctx, p.yield)
	return nil
}

func (p *Poller) handle(ctx context.Context, pr *presentation) {
	if pr.duplicate {
		metrics.ScansTotal.WithLabelValues(metrics.ResultDuplicate).Inc()
		p.log.WithField("uid", pr.uid).Debug("tag unchanged since last scan, debounced")
		return
	}
	if pr.payload == "" {
		metrics.ScansTotal.WithLabelValues(metrics.ResultEmptyPayload).Inc()
		p.log.WithFields(logrus.Fields{"uid": pr.uid, "reason": pr.reason}).Info("tag without usable payload")
		p.lastUID = pr.uid
		return
	}

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.proc.Process(pctx, pr.payload, pr.uid); err != nil {
		// A failed transition committed nothing, so leaving lastUID
		// unchanged lets the next presentation retry without risking a
		// double toggle.
		return
	}
	p.lastUID = pr.uid
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
