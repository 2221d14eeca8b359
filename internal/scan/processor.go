package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"schooltrack/internal/directory"
	"schooltrack/internal/metrics"
	"schooltrack/internal/notify"
	"schooltrack/internal/queue"
)

// Directory is the slice of the store the processor needs. RecordScan must
// persist the attendance change and its audit entries atomically;
// AppendAudit is used only for diagnostics.
type Directory interface {
	StudentByTag(ctx context.Context, tid string) (*directory.Student, error)
	RecordScan(ctx context.Context, id int64, inSchool bool, lastscan int64, entries []directory.AuditEntry) error
	DutyHolder(ctx context.Context) (*directory.Operator, error)
	AppendAudit(ctx context.Context, e directory.AuditEntry) error
}

// Notifier receives completed scan events. Enqueue never blocks the scan
// transaction.
type Notifier interface {
	Queue(evt notify.Event)
}

// Processor turns a decoded tag payload into the authoritative attendance
// transition: person lookup, status toggle, audit trail, notification.
type Processor struct {
	dir      Directory
	notifier Notifier
	pub      queue.Queue // optional, best-effort stats pipeline
	log      *logrus.Entry
	now      func() time.Time
}

// NewProcessor creates a processor. pub may be nil.
func NewProcessor(dir Directory, notifier Notifier, pub queue.Queue, log *logrus.Entry) *Processor {
	return &Processor{dir: dir, notifier: notifier, pub: pub, log: log, now: time.Now}
}

// Process performs the state transition for one tag presentation.
//
// The transition is a pure toggle of the stored boolean: there is no
// independent entry/exit signal, so a missed scan inverts the polarity of
// every later one. Kept for compatibility with existing data.
//
// An unregistered or stale payload is a silent no-op, not an error. The
// attendance flip and its audit entries are one transaction: a persistence
// failure rolls the whole transition back, leaving only a best-effort
// diagnostic audit entry, and the presentation can be retried safely.
func (p *Processor) Process(ctx context.Context, payload, uid string) error {
	student, err := p.dir.StudentByTag(ctx, payload)
	if err != nil {
		return p.fail(ctx, "student lookup", err)
	}
	if student == nil {
		p.log.WithFields(logrus.Fields{"uid": uid}).Debug("tag payload not registered, ignoring")
		metrics.ScansTotal.WithLabelValues(metrics.ResultUnknownTag).Inc()
		return nil
	}

	dutyLabel := notify.NoDutyTeacher
	duty, err := p.dir.DutyHolder(ctx)
	if err != nil {
		// Absence of a duty holder is valid; a lookup error is treated
		// the same way so it cannot block the transition.
		p.log.WithError(err).Warn("duty holder lookup failed")
		duty = nil
	}
	if duty != nil {
		dutyLabel = duty.Username
	}

	now := p.now().UTC()
	newStatus := !student.InSchool

	action, recorded, verb := directory.ActionCheckOut, directory.ActionRecordedCheckOut, "checked out"
	if newStatus {
		action, recorded, verb = directory.ActionCheckIn, directory.ActionRecordedCheckIn, "checked in"
	}

	entries := []directory.AuditEntry{{
		ActorID:    student.ID,
		Action:     action,
		TargetType: "student",
		TargetID:   student.ID,
		Detail:     fmt.Sprintf("%s %s (duty teacher: %s)", student.Name, verb, dutyLabel),
		Origin:     "scanner",
		CreatedAt:  now,
	}}
	if duty != nil {
		entries = append(entries, directory.AuditEntry{
			ActorID:    duty.ID,
			Action:     recorded,
			TargetType: "student",
			TargetID:   student.ID,
			Detail:     fmt.Sprintf("%s %s while %s was on duty", student.Name, verb, duty.Username),
			Origin:     "scanner",
			CreatedAt:  now,
		})
	}
	if err := p.dir.RecordScan(ctx, student.ID, newStatus, now.Unix(), entries); err != nil {
		return p.fail(ctx, "scan transaction", err)
	}

	evt := notify.Event{
		Action:      notify.ActionCheckOut,
		StudentID:   student.ID,
		StudentName: student.Name,
		WasInSchool: student.InSchool,
		InSchool:    newStatus,
		Timestamp:   now.Unix(),
		DutyTeacher: dutyLabel,
	}
	if newStatus {
		evt.Action = notify.ActionCheckIn
	}
	p.notifier.Queue(evt)
	p.publish(ctx, evt)

	metrics.ScansTotal.WithLabelValues(metrics.ResultProcessed).Inc()
	p.log.WithFields(logrus.Fields{
		"student_id": student.ID,
		"action":     evt.Action,
		"duty":       dutyLabel,
	}).Info("scan processed")
	return nil
}

// publish pushes the event onto the stats queue, best-effort.
func (p *Processor) publish(ctx context.Context, evt notify.Event) {
	if p.pub == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		p.log.WithError(err).Warn("event marshal failed")
		return
	}
	if err := p.pub.Publish(ctx, queue.Message{Type: "scan", Body: data}); err != nil {
		p.log.WithError(err).Warn("stats publish failed")
	}
}

// fail logs the failure and leaves a diagnostic audit entry attributed to
// the system actor. A failure to write that entry is swallowed: diagnostics
// must never open a second failure path.
func (p *Processor) fail(ctx context.Context, stage string, err error) error {
	metrics.ScansTotal.WithLabelValues(metrics.ResultError).Inc()
	p.log.WithError(err).WithField("stage", stage).Error("scan processing failed")

	diag := directory.AuditEntry{
		ActorID: directory.SystemActorID,
		Action:  directory.ActionScanFailure,
		Detail:  fmt.Sprintf("%s failed: %v", stage, err),
		Origin:  "scanner",
	}
	if derr := p.dir.AppendAudit(ctx, diag); derr != nil {
		p.log.WithError(derr).Warn("diagnostic audit write failed")
	}
	return err
}
