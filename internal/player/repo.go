// Package player keeps the user's display name, which doubles as the
// onboarding flag: no name means the user has not been welcomed yet.
package player

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"taskalert/internal/storage"
)

const (
	KeyName       = "userName"
	MaxNameLength = 50
)

var ErrInvalidName = errors.New("invalid name")

type Repo struct {
	mu    sync.Mutex
	store storage.Storage
}

func NewRepo(st storage.Storage) *Repo {
	return &Repo{store: st}
}

// Name returns the stored display name. A storage failure reads as unset.
func (r *Repo) Name() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok, err := r.store.Get(KeyName)
	if err != nil || !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *Repo) Onboarded() bool {
	_, ok := r.Name()
	return ok
}

func (r *Repo) SetName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: at most %d characters", ErrInvalidName, MaxNameLength)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Set(KeyName, name); err != nil {
		return fmt.Errorf("save name: %w", err)
	}
	return nil
}

func (r *Repo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Remove(KeyName)
}

// Greeting is shown to returning users.
func Greeting(name string) string {
	return "Welcome back, " + name + "!"
}
