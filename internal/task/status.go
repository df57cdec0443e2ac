package task

import "time"

type Status string

const (
	StatusOverdue Status = "overdue"
	StatusUrgent  Status = "urgent"
	StatusWarning Status = "warning"
	StatusNormal  Status = "normal"
)

const (
	// UpcomingWindow is the "due very soon" horizon; the alert engine's
	// upcoming notification fires when a task crosses into it.
	UpcomingWindow = 5 * time.Minute
	// WarningWindow is the "due soon" horizon.
	WarningWindow = 30 * time.Minute
)

// Classify is a pure function of the due date and the current time.
// Both window edges are inclusive: exactly 5:00 before due is urgent.
func Classify(due, now time.Time) Status {
	until := due.Sub(now)
	switch {
	case until < 0:
		return StatusOverdue
	case until <= UpcomingWindow:
		return StatusUrgent
	case until <= WarningWindow:
		return StatusWarning
	default:
		return StatusNormal
	}
}

func (s Status) Label() string {
	switch s {
	case StatusOverdue:
		return "Overdue"
	case StatusUrgent:
		return "Due very soon"
	case StatusWarning:
		return "Due soon"
	default:
		return ""
	}
}
