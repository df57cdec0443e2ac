package telemetry

import (
	"encoding/json"
	"time"
)

type Stats struct {
	Since            time.Time         `json:"since"`
	EventCounts      map[EventType]int `json:"event_counts"`
	TasksCreated     int               `json:"tasks_created"`
	TasksCompleted   int               `json:"tasks_completed"`
	UpcomingAlerts   int               `json:"upcoming_alerts"`
	OverdueAlerts    int               `json:"overdue_alerts"`
	AlertsConfirmed  int               `json:"alerts_confirmed"`
	AlertsDismissed  int               `json:"alerts_dismissed"`
	AlertsPerTask    map[string]int    `json:"alerts_per_task"`
	ConfirmationRate float64           `json:"confirmation_rate"`
}

// CalculateStats summarizes a session's events.
func CalculateStats(events []Event, since time.Time) (Stats, error) {
	stats := Stats{
		Since:         since,
		EventCounts:   make(map[EventType]int),
		AlertsPerTask: make(map[string]int),
	}

	for _, event := range events {
		stats.EventCounts[event.Type]++

		var metadata EventMetadata
		if err := json.Unmarshal([]byte(event.Metadata), &metadata); err != nil {
			continue
		}

		switch event.Type {
		case EventTaskCreated:
			stats.TasksCreated++
		case EventTaskCompleted:
			stats.TasksCompleted++
		case EventAlertUpcoming, EventAlertOverdue:
			if event.Type == EventAlertUpcoming {
				stats.UpcomingAlerts++
			} else {
				stats.OverdueAlerts++
			}
			if id, ok := metadata["task_id"].(string); ok {
				stats.AlertsPerTask[id]++
			}
		case EventAlertConfirmed:
			stats.AlertsConfirmed++
		case EventAlertDismissed:
			stats.AlertsDismissed++
		}
	}

	if answered := stats.AlertsConfirmed + stats.AlertsDismissed; answered > 0 {
		stats.ConfirmationRate = float64(stats.AlertsConfirmed) / float64(answered)
	}

	return stats, nil
}
