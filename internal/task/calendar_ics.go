package task

import (
	"fmt"
	"strings"
	"time"
)

const icsTimeLayout = "20060102T150405Z"

// BuildCalendarICS exports active tasks as iCalendar events. Each event ends
// at the task's due time and carries a display alarm at the upcoming window.
func BuildCalendarICS(tasks []Task, now time.Time) (string, error) {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//taskalert//Task Export//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	}

	for _, t := range tasks {
		if t.DueDate.IsZero() {
			return "", fmt.Errorf("task %s: due date required for calendar export", t.ID)
		}
		title := strings.TrimSpace(t.Title)
		if title == "" {
			title = "Task"
		}
		due := t.DueDate.UTC()
		start := due.Add(-UpcomingWindow)
		if t.CreatedAt.UTC().After(start) && t.CreatedAt.UTC().Before(due) {
			start = t.CreatedAt.UTC()
		}

		lines = append(lines,
			"BEGIN:VEVENT",
			"UID:"+escapeICSText(fmt.Sprintf("task-%s@taskalert", t.ID)),
			"DTSTAMP:"+now.UTC().Format(icsTimeLayout),
			"SUMMARY:"+escapeICSText(title),
			"DTSTART:"+start.Format(icsTimeLayout),
			"DTEND:"+due.Format(icsTimeLayout),
		)
		if desc := strings.TrimSpace(t.Description); desc != "" {
			lines = append(lines, "DESCRIPTION:"+escapeICSText(desc))
		}
		lines = append(lines,
			"BEGIN:VALARM",
			"ACTION:DISPLAY",
			"DESCRIPTION:"+escapeICSText(fmt.Sprintf("%q is due in 5 minutes!", title)),
			fmt.Sprintf("TRIGGER;RELATED=END:-PT%dM", int(UpcomingWindow/time.Minute)),
			"END:VALARM",
			"END:VEVENT",
		)
	}

	lines = append(lines, "END:VCALENDAR", "")
	return strings.Join(lines, "\r\n"), nil
}

func escapeICSText(s string) string {
	repl := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
		"\r", "\\n",
	)
	return repl.Replace(s)
}
