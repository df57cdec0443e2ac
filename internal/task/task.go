package task

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("task not found")
	ErrDuplicateID = errors.New("task id already exists")
	ErrAmbiguousID = errors.New("task id prefix is ambiguous")
)

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     time.Time  `json:"dueDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ValidationError reports a required field that was left empty.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func NewID() string {
	return uuid.NewString()
}

// New builds an active task with a fresh id. It does not validate.
func New(title, description string, due, now time.Time) Task {
	return Task{
		ID:          NewID(),
		Title:       title,
		Description: description,
		DueDate:     due,
		CreatedAt:   now,
	}
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title"}
	}
	if t.DueDate.IsZero() {
		return &ValidationError{Field: "dueDate"}
	}
	return nil
}

func (t Task) IsCompleted() bool {
	return t.CompletedAt != nil
}

// Status classifies the task against now.
func (t Task) Status(now time.Time) Status {
	return Classify(t.DueDate, now)
}

func (t Task) clone() Task {
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	return t
}

func cloneAll(ts []Task) []Task {
	out := make([]Task, len(ts))
	for i, t := range ts {
		out[i] = t.clone()
	}
	return out
}

var dueLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseDue accepts RFC 3339, datetime-local style layouts interpreted in loc,
// or a "+duration" offset from now (e.g. "+45m").
func ParseDue(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ValidationError{Field: "dueDate"}
	}
	if loc == nil {
		loc = time.Local
	}

	if strings.HasPrefix(s, "+") {
		d, err := time.ParseDuration(s[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("parse due offset %q: %w", s, err)
		}
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized due date %q (want YYYY-MM-DDTHH:MM, RFC 3339 or +duration)", s)
}
