// Package storage is the local key/value store the application mirrors its
// state into. Values are opaque strings; absence of a key means "unset".
package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrClosed         = errors.New("storage closed")
	ErrLocked         = errors.New("storage in use by another process")
)

const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	// Clear removes every key.
	Clear() error
	Close() error
}

// Open selects a backend by name. An empty name means BackendFile.
func Open(backend, dir string) (Storage, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return NewFile(dir)
	case BackendBolt:
		return NewBolt(dir)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = map[string]string{}
	return nil
}

func (m *Memory) Close() error { return nil }
