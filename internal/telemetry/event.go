package telemetry

import "time"

type EventType string

const (
	EventTaskCreated    EventType = "task_created"
	EventTaskEdited     EventType = "task_edited"
	EventTaskDeleted    EventType = "task_deleted"
	EventTaskCompleted  EventType = "task_completed"
	EventAlertUpcoming  EventType = "alert_upcoming"
	EventAlertOverdue   EventType = "alert_overdue"
	EventAlertConfirmed EventType = "alert_confirmed"
	EventAlertDismissed EventType = "alert_dismissed"
	EventReset          EventType = "reset"
)

type Event struct {
	ID        int       `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  string    `json:"metadata"`
}

type EventMetadata map[string]interface{}
