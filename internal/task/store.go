package task

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	"taskalert/internal/clock"
	"taskalert/internal/storage"
)

// Storage keys for the two persisted collections.
const (
	KeyActive    = "tasks"
	KeyCompleted = "completedTasks"
)

// Snapshot is an immutable view of the active collection. Version changes on
// every mutation, so two snapshots with the same Version hold the same tasks.
type Snapshot struct {
	Version uint64
	Tasks   []Task
}

// Store owns the active and completed collections for this process. Every
// mutation first picks up changes other processes wrote to storage, then is
// mirrored back before it returns.
type Store struct {
	mu        sync.RWMutex
	active    []Task
	completed []Task
	version   uint64

	// Payloads last read from or written to storage.
	rawActive    string
	rawCompleted string

	storage storage.Storage
	clock   clock.Clock
	logger  *log.Logger
}

func NewStore(st storage.Storage, c clock.Clock, logger *log.Logger) *Store {
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		active:    []Task{},
		completed: []Task{},
		storage:   st,
		clock:     c,
		logger:    logger,
	}
}

// Load replaces both collections with what storage holds. Missing keys and
// malformed payloads load as empty collections.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawActive, _ := s.readRawLocked(KeyActive)
	rawCompleted, _ := s.readRawLocked(KeyCompleted)
	s.adoptLocked(rawActive, rawCompleted)
}

// Sync picks up writes made to storage by another process since this store
// last read or wrote it. It reports whether the collections changed.
func (s *Store) Sync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked()
}

func (s *Store) syncLocked() bool {
	rawActive, err := s.readRawLocked(KeyActive)
	if err != nil {
		return false
	}
	rawCompleted, err := s.readRawLocked(KeyCompleted)
	if err != nil {
		return false
	}
	if rawActive == s.rawActive && rawCompleted == s.rawCompleted {
		return false
	}
	s.logger.Printf("task store: reloading, storage changed outside this process")
	s.adoptLocked(rawActive, rawCompleted)
	return true
}

func (s *Store) adoptLocked(rawActive, rawCompleted string) {
	active := s.parseLocked(KeyActive, rawActive)
	completed := s.parseLocked(KeyCompleted, rawCompleted)

	done := make(map[string]bool, len(completed))
	for i := range completed {
		done[completed[i].ID] = true
		if completed[i].CompletedAt == nil {
			at := s.clock.Now()
			completed[i].CompletedAt = &at
		}
	}
	kept := active[:0]
	for _, t := range active {
		if done[t.ID] {
			s.logger.Printf("task store: dropping %s from active, already completed", t.ID)
			continue
		}
		t.CompletedAt = nil
		kept = append(kept, t)
	}

	s.active = kept
	s.completed = completed
	s.rawActive = rawActive
	s.rawCompleted = rawCompleted
	s.version++
}

func (s *Store) readRawLocked(key string) (string, error) {
	raw, ok, err := s.storage.Get(key)
	if err != nil {
		s.logger.Printf("task store: read %s: %v", key, err)
		return "", err
	}
	if !ok {
		return "", nil
	}
	return raw, nil
}

func (s *Store) parseLocked(key, raw string) []Task {
	if strings.TrimSpace(raw) == "" {
		return []Task{}
	}
	var out []Task
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.logger.Printf("task store: ignoring malformed %s: %v", key, err)
		return []Task{}
	}
	if out == nil {
		out = []Task{}
	}
	return out
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked remembers what it wrote only when both writes succeed, so a
// failed write never masks a later external change.
func (s *Store) saveLocked() error {
	a, err := json.Marshal(s.active)
	if err != nil {
		return err
	}
	c, err := json.Marshal(s.completed)
	if err != nil {
		return err
	}
	if err := errors.Join(
		s.storage.Set(KeyActive, string(a)),
		s.storage.Set(KeyCompleted, string(c)),
	); err != nil {
		return err
	}
	s.rawActive, s.rawCompleted = string(a), string(c)
	return nil
}

// commitLocked bumps the version and persists. A failed write is logged; the
// in-memory state stays authoritative for the session.
func (s *Store) commitLocked() {
	s.version++
	if err := s.saveLocked(); err != nil {
		s.logger.Printf("task store: save: %v", err)
	}
}

func (s *Store) Add(t Task) (Task, error) {
	if err := t.Validate(); err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncLocked()
	if t.ID == "" {
		t.ID = NewID()
	}
	if s.indexLocked(s.active, t.ID) >= 0 || s.indexLocked(s.completed, t.ID) >= 0 {
		return Task{}, ErrDuplicateID
	}
	t.CreatedAt = s.clock.Now()
	t.CompletedAt = nil

	s.active = append(s.active, t)
	s.commitLocked()
	return t.clone(), nil
}

// Edit replaces the active task with the same id. ID and CreatedAt are kept
// from the stored task.
func (s *Store) Edit(t Task) (Task, error) {
	if err := t.Validate(); err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncLocked()
	i := s.indexLocked(s.active, t.ID)
	if i < 0 {
		return Task{}, ErrNotFound
	}
	t.CreatedAt = s.active[i].CreatedAt
	t.CompletedAt = nil
	s.active[i] = t
	s.commitLocked()
	return t.clone(), nil
}

// Remove deletes an active task. It reports whether anything was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncLocked()
	i := s.indexLocked(s.active, id)
	if i < 0 {
		return false
	}
	s.active = append(s.active[:i], s.active[i+1:]...)
	s.commitLocked()
	return true
}

// Complete moves an active task to the completed collection. A missing id is
// a no-op; completion can race with deletion.
func (s *Store) Complete(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncLocked()
	i := s.indexLocked(s.active, id)
	if i < 0 {
		return Task{}, false
	}
	t := s.active[i]
	now := s.clock.Now()
	t.CompletedAt = &now

	s.active = append(s.active[:i], s.active[i+1:]...)
	s.completed = append(s.completed, t)
	s.commitLocked()
	return t.clone(), true
}

// Clear empties both collections.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = []Task{}
	s.completed = []Task{}
	s.version++
	return s.saveLocked()
}

func (s *Store) Active() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{Version: s.version, Tasks: cloneAll(s.active)}
}

func (s *Store) Completed() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneAll(s.completed)
}

func (s *Store) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(s.active, id); i >= 0 {
		return s.active[i].clone(), true
	}
	if i := s.indexLocked(s.completed, id); i >= 0 {
		return s.completed[i].clone(), true
	}
	return Task{}, false
}

// Resolve finds an active task by exact id or unique id prefix.
func (s *Store) Resolve(prefix string) (Task, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return Task{}, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *Task
	for i := range s.active {
		id := s.active[i].ID
		if id == prefix {
			return s.active[i].clone(), nil
		}
		if strings.HasPrefix(id, prefix) {
			if match != nil {
				return Task{}, ErrAmbiguousID
			}
			match = &s.active[i]
		}
	}
	if match == nil {
		return Task{}, ErrNotFound
	}
	return match.clone(), nil
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Summarize(s.active, s.completed)
}

func (s *Store) indexLocked(ts []Task, id string) int {
	for i := range ts {
		if ts[i].ID == id {
			return i
		}
	}
	return -1
}
