package notify

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Alarm is the looping overdue sound. Stop also rewinds it.
type Alarm interface {
	Start() error
	Stop()
}

// Bell rings the terminal bell on w every interval until stopped.
type Bell struct {
	w        io.Writer
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
	rings  int
}

func NewBell(w io.Writer, interval time.Duration) *Bell {
	if interval <= 0 {
		interval = time.Second
	}
	return &Bell{w: w, interval: interval}
}

// Start is a no-op while already ringing.
func (b *Bell) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopCh != nil {
		return nil
	}
	if err := b.ringLocked(); err != nil {
		return err
	}
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.loop(b.stopCh, b.doneCh)
	return nil
}

func (b *Bell) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			_ = b.ringLocked()
			b.mu.Unlock()
		}
	}
}

func (b *Bell) ringLocked() error {
	b.rings++
	_, err := fmt.Fprintf(b.w, "\aALARM\n")
	return err
}

func (b *Bell) Stop() {
	b.mu.Lock()
	stop, done := b.stopCh, b.doneCh
	b.stopCh, b.doneCh = nil, nil
	b.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	b.mu.Lock()
	b.rings = 0
	b.mu.Unlock()
}

// Playing reports whether the bell loop is running.
func (b *Bell) Playing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopCh != nil
}

// Rings returns how many times the bell rang since the last rewind.
func (b *Bell) Rings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rings
}

type Silent struct{}

func (Silent) Start() error { return nil }
func (Silent) Stop()        {}
