package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const fileName = "storage.json"

// File keeps every key in one JSON object on disk and rewrites the file on
// each change. Every call re-reads the file, so several processes sharing a
// data dir see each other's writes.
type File struct {
	mu     sync.Mutex
	path   string
	closed bool
}

func NewFile(dataDir string) (*File, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return &File{path: filepath.Join(dataDir, fileName)}, nil
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

// readLocked treats a missing or unreadable file as empty.
func (f *File) readLocked() map[string]string {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return map[string]string{}
	}
	var loaded map[string]string
	if err := json.Unmarshal(b, &loaded); err != nil || loaded == nil {
		return map[string]string{}
	}
	return loaded
}

// writeLocked replaces the file through a rename so readers never see a
// partial write.
func (f *File) writeLocked(values map[string]string) error {
	b, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), fileName+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return "", false, ErrClosed
	}
	v, ok := f.readLocked()[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	values := f.readLocked()
	values[key] = value
	return f.writeLocked(values)
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	values := f.readLocked()
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.writeLocked(values)
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	return f.writeLocked(map[string]string{})
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}
