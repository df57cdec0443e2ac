package clock

import (
	"sort"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot callback.
type Timer interface {
	// Stop reports whether it prevented the callback from running.
	Stop() bool
}

type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, f)
}

// Fake is deterministic and test-friendly. Timers only fire from Advance or
// Set, never from inside AfterFunc, and callbacks run without Fake's lock held.
type Fake struct {
	mu     sync.Mutex
	t      time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *Fake
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func NewFake(start time.Time) *Fake {
	return &Fake{t: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d < 0 {
		d = 0
	}
	c.seq++
	ft := &fakeTimer{c: c, at: c.t.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, ft)
	return ft
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.c.removeLocked(t)
	return true
}

func (c *Fake) removeLocked(t *fakeTimer) {
	out := c.timers[:0]
	for _, x := range c.timers {
		if x != t {
			out = append(out, x)
		}
	}
	c.timers = out
}

// Pending returns the number of armed timers.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextAt returns the deadline of the earliest armed timer.
func (c *Fake) NextAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.timers) == 0 {
		return time.Time{}, false
	}
	c.sortLocked()
	return c.timers[0].at, true
}

func (c *Fake) sortLocked() {
	sort.SliceStable(c.timers, func(i, j int) bool {
		if !c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].at.Before(c.timers[j].at)
		}
		return c.timers[i].seq < c.timers[j].seq
	})
}

func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
	c.fireDue()
}

func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.t.Add(d)
	c.mu.Unlock()

	// Step through deadlines so callbacks observe the time they were due at.
	for {
		c.mu.Lock()
		c.sortLocked()
		if len(c.timers) == 0 || c.timers[0].at.After(target) {
			c.t = target
			c.mu.Unlock()
			break
		}
		if c.timers[0].at.After(c.t) {
			c.t = c.timers[0].at
		}
		c.mu.Unlock()
		c.fireDue()
	}
	c.fireDue()
}

func (c *Fake) fireDue() {
	for {
		c.mu.Lock()
		c.sortLocked()
		if len(c.timers) == 0 || c.timers[0].at.After(c.t) {
			c.mu.Unlock()
			return
		}
		next := c.timers[0]
		c.timers = c.timers[1:]
		next.fired = true
		c.mu.Unlock()

		next.f()
	}
}
