/*
Package presence schedules the deferred removal of offline profiles.

A Reclaimer keeps at most one pending task per connection id. When a task's timer fires, the
expiry is handed to the owner over a channel instead of touching relay state from the timer
goroutine. The owner then confirms the expiry with Claim, which rejects anything cancelled or
superseded in the meantime.
*/
package presence

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/clockx"
	"chatrelay/internal/pkg/logx"
)

const (
	// DefaultReclaimAfter is how long an offline profile is kept for "last seen" display.
	DefaultReclaimAfter = time.Hour

	expiredBuffer = 64
)

// Expiry identifies one fired reclaim task.
type Expiry struct {
	ID         string
	generation uint64
}

type task struct {
	timer      clockx.Timer
	generation uint64
}

// Reclaimer schedules one-shot reclaim tasks keyed by connection id.
// Schedule, Cancel, Claim and Pending must be called from the owner's goroutine.
type Reclaimer struct {
	clock   clockx.Clock
	delay   time.Duration
	pending map[string]task
	nextGen uint64

	expired  chan Expiry
	stopChan chan struct{}
	stopOnce sync.Once

	logger zerolog.Logger
}

// NewReclaimer returns a Reclaimer firing delay after each Schedule on clock.
// A nil clock uses the system clock and a non-positive delay uses DefaultReclaimAfter.
func NewReclaimer(clock clockx.Clock, delay time.Duration) *Reclaimer {
	if clock == nil {
		clock = clockx.System()
	}
	if delay <= 0 {
		delay = DefaultReclaimAfter
	}

	return &Reclaimer{
		clock:    clock,
		delay:    delay,
		pending:  make(map[string]task),
		expired:  make(chan Expiry, expiredBuffer),
		stopChan: make(chan struct{}),
		logger:   logx.Component("presence"),
	}
}

// Delay returns the configured reclaim delay.
func (r *Reclaimer) Delay() time.Duration {
	return r.delay
}

// Schedule starts a reclaim task for id, replacing any task already pending for it.
func (r *Reclaimer) Schedule(id string) {
	r.Cancel(id)

	r.nextGen++
	exp := Expiry{ID: id, generation: r.nextGen}

	timer := r.clock.AfterFunc(r.delay, func() {
		select {
		case r.expired <- exp:
		case <-r.stopChan:
		}
	})

	r.pending[id] = task{timer: timer, generation: exp.generation}

	r.logger.Debug().
		Str("connection_id", id).
		Dur("delay", r.delay).
		Msg("Reclaim scheduled.")
}

// Cancel stops the task pending for id and reports whether there was one.
func (r *Reclaimer) Cancel(id string) bool {
	t, ok := r.pending[id]
	if !ok {
		return false
	}

	t.timer.Stop()
	delete(r.pending, id)

	r.logger.Debug().Str("connection_id", id).Msg("Reclaim cancelled.")
	return true
}

// Expired delivers fired tasks. Each value must be confirmed with Claim before acting on it.
func (r *Reclaimer) Expired() <-chan Expiry {
	return r.expired
}

// Claim reports whether exp is the task currently pending for its id and, if so, retires it.
// Expiries from cancelled or rescheduled tasks return false.
func (r *Reclaimer) Claim(exp Expiry) bool {
	t, ok := r.pending[exp.ID]
	if !ok || t.generation != exp.generation {
		return false
	}

	delete(r.pending, exp.ID)
	return true
}

// Pending reports whether a task is scheduled for id.
func (r *Reclaimer) Pending(id string) bool {
	_, ok := r.pending[id]
	return ok
}

// Len returns the number of pending tasks.
func (r *Reclaimer) Len() int {
	return len(r.pending)
}

// Stop cancels every pending task and releases timer callbacks blocked on delivery.
func (r *Reclaimer) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})

	for id, t := range r.pending {
		t.timer.Stop()
		delete(r.pending, id)
	}
}
