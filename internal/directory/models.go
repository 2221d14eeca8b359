package directory

import "time"

// Student is a tracked person. TagID is the payload written to their NFC tag
// and is empty until a tag has been registered. InSchool is only ever mutated
// by the scan processor.
type Student struct {
	ID          int64  `json:"id"`
	TagID       string `json:"tid"`
	Name        string `json:"name"`
	SchoolClass string `json:"school_class"`
	LastScan    int64  `json:"lastscan"`
	InSchool    bool   `json:"in_school"`
}

// Operator is a credential-holding account (teacher, IT staff or admin).
type Operator struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"is_active"`
	OnDuty       bool      `json:"on_duty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditEntry is an immutable append-only record of a mutating operation.
type AuditEntry struct {
	ID         int64     `json:"id"`
	ActorID    int64     `json:"actor_id"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   int64     `json:"target_id"`
	Detail     string    `json:"detail"`
	Origin     string    `json:"origin"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audit actions written by the scan processor. The two student-facing
// actions carry the duty-teacher label in their detail text; the recorded_*
// actions are attributed to the duty holder.
const (
	ActionCheckIn          = "check_in_with_duty_teacher"
	ActionCheckOut         = "check_out_with_duty_teacher"
	ActionRecordedCheckIn  = "recorded_check_in"
	ActionRecordedCheckOut = "recorded_check_out"
	ActionScanFailure      = "scan_failure"
)

// SystemActorID is the reserved actor for diagnostic audit entries.
const SystemActorID int64 = 0
