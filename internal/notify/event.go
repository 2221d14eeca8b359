package notify

// Scan event actions.
const (
	ActionCheckIn  = "check_in"
	ActionCheckOut = "check_out"
)

// NoDutyTeacher is the sentinel label used when no operator holds duty.
const NoDutyTeacher = "no duty teacher"

// Event describes one completed check-in/out transition, broadcast to live
// subscribers and published to the stats queue.
type Event struct {
	Action      string `json:"action"`
	StudentID   int64  `json:"student_id"`
	StudentName string `json:"student_name"`
	WasInSchool bool   `json:"was_in_school"`
	InSchool    bool   `json:"in_school"`
	Timestamp   int64  `json:"timestamp"`
	DutyTeacher string `json:"duty_teacher"`
}
