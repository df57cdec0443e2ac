package telemetry

import (
	"encoding/json"
	"sync"
	"time"
)

// Session is the in-memory event log of one process. Events are kept in
// record order and numbered from 1.
type Session struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

func NewSession(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{now: now}
}

func (s *Session) RecordEvent(eventType EventType, metadata EventMetadata) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{
		ID:        len(s.events) + 1,
		Type:      eventType,
		Timestamp: s.now(),
		Metadata:  string(raw),
	})
	return nil
}

// Since returns a copy of the events recorded at or after t.
func (s *Session) Since(t time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Event{}
	for _, ev := range s.events {
		if !ev.Timestamp.Before(t) {
			out = append(out, ev)
		}
	}
	return out
}

// Count reports how many events of type ev were recorded.
func (s *Session) Count(ev EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.events {
		if e.Type == ev {
			n++
		}
	}
	return n
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
