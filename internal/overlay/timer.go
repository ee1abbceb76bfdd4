package overlay

import "time"

// Stopper cancels a scheduled callback.
type Stopper interface {
	// Stop prevents the callback from running if it has not started yet.
	// It reports whether the call stopped the callback.
	Stop() bool
}

// Scheduler runs a callback after a delay. Implementations must invoke f on
// the goroutine that drives the controller; internal/loop does this by
// posting the callback onto its queue.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

// timer is a single-shot, restartable timer tagged with a generation.
//
// A callback that was already queued when the timer was stopped or
// restarted carries an outdated generation and is dropped, so a stale expiry
// never acts on state it was not armed for.
type timer struct {
	sched  Scheduler
	fire   func()
	gen    uint64
	handle Stopper
	active bool
}

func newTimer(sched Scheduler, fire func()) *timer {
	return &timer{sched: sched, fire: fire}
}

// start (re)arms the timer.
func (t *timer) start(d time.Duration) {
	t.stop()
	if t.sched == nil {
		return
	}
	gen := t.gen
	t.active = true
	t.handle = t.sched.AfterFunc(d, func() {
		if gen != t.gen || !t.active {
			return
		}
		t.active = false
		t.handle = nil
		t.fire()
	})
}

// stop disarms the timer. It is safe to call on an idle timer.
func (t *timer) stop() {
	if t.handle != nil {
		t.handle.Stop()
		t.handle = nil
	}
	t.active = false
	t.gen++
}

// isActive reports whether the timer is armed and has not fired.
func (t *timer) isActive() bool {
	return t.active
}
