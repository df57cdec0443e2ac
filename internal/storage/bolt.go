package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	boltFileName = "taskalert.db"
	boltBucket   = "local"
)

// Bolt holds an exclusive lock on its database file while open; a second
// process on the same data dir gets ErrLocked.
type Bolt struct {
	db *bolt.DB
}

func NewBolt(dataDir string) (*Bolt, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, boltFileName)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(key string) (string, bool, error) {
	var (
		out string
		ok  bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if v != nil {
			// v is only valid inside the transaction.
			out, ok = string(v), true
		}
		return nil
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return "", false, ErrClosed
	}
	return out, ok, err
}

func (b *Bolt) Set(key, value string) error {
	return b.update(func(bk *bolt.Bucket) error {
		return bk.Put([]byte(key), []byte(value))
	})
}

func (b *Bolt) Remove(key string) error {
	return b.update(func(bk *bolt.Bucket) error {
		return bk.Delete([]byte(key))
	})
}

func (b *Bolt) Clear() error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(boltBucket)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(boltBucket))
		return err
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func (b *Bolt) update(fn func(*bolt.Bucket) error) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket([]byte(boltBucket)))
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
