// Package clock tracks the countdown of a single exam attempt.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CheckInterval is the resolution of the authoritative expiry check.
const CheckInterval = time.Second

// SessionClock counts down from a fixed duration anchored at Start.
//
// Remaining is computed with clock.Since against the start instant, which uses the
// monotonic reading carried by time.Time, so wall-clock adjustments mid-session do not
// shorten or extend the attempt.
type SessionClock struct {
	clk      clockwork.Clock
	duration time.Duration

	mu        sync.Mutex
	startedAt time.Time
	started   bool

	expired    chan struct{}
	expireOnce sync.Once
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

// New creates a clock for an attempt of the given length.
func New(clk clockwork.Clock, duration time.Duration) *SessionClock {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &SessionClock{
		clk:      clk,
		duration: duration,
		expired:  make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start anchors the countdown at the current instant and begins the expiry check.
// Calling Start more than once has no effect.
func (c *SessionClock) Start() time.Time {
	c.mu.Lock()
	if c.started {
		at := c.startedAt
		c.mu.Unlock()
		return at
	}
	c.started = true
	c.startedAt = c.clk.Now()
	at := c.startedAt
	c.mu.Unlock()

	go c.run()
	return at
}

func (c *SessionClock) run() {
	defer close(c.done)

	ticker := c.clk.NewTicker(CheckInterval)
	defer ticker.Stop()

	for {
		if c.Remaining() <= 0 {
			c.fire()
			return
		}
		select {
		case <-c.stop:
			return
		case <-ticker.Chan():
		}
	}
}

func (c *SessionClock) fire() {
	c.expireOnce.Do(func() { close(c.expired) })
}

// StartedAt returns the instant Start was called.
func (c *SessionClock) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// DeadlineAt returns startedAt + duration.
func (c *SessionClock) DeadlineAt() time.Time {
	return c.StartedAt().Add(c.duration)
}

// Remaining returns the time left; zero or negative once the attempt is over.
// Before Start it returns the full duration.
func (c *SessionClock) Remaining() time.Duration {
	c.mu.Lock()
	started, at := c.started, c.startedAt
	c.mu.Unlock()
	if !started {
		return c.duration
	}
	return c.duration - c.clk.Since(at)
}

// Expired is closed exactly once, when Remaining first drops to zero.
// It is never closed if Stop wins first.
func (c *SessionClock) Expired() <-chan struct{} {
	return c.expired
}

// Stop halts the expiry check and waits for it to exit.
func (c *SessionClock) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })

	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	}
}
