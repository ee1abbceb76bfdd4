package overlay

import (
	"fmt"
	"strconv"
	"time"
	"unicode"
)

type portCall struct {
	op     string
	text   string
	offset int
	length uint
}

func commitCall(text string) portCall { return portCall{op: "commit", text: text} }

func deleteCall(offset int, length uint) portCall {
	return portCall{op: "delete", offset: offset, length: length}
}

type recordingPort struct {
	calls []portCall
}

func (p *recordingPort) Commit(text string) {
	p.calls = append(p.calls, commitCall(text))
}

func (p *recordingPort) DeleteSurroundingText(offset int, length uint) {
	p.calls = append(p.calls, deleteCall(offset, length))
}

// manualClock is a Scheduler driven by Advance.
type manualClock struct {
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Stopper {
	t := &manualTimer{at: c.now + d, seq: c.seq, f: f}
	c.seq++
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward, firing due callbacks in deadline order.
func (c *manualClock) Advance(d time.Duration) {
	target := c.now + d
	for {
		var next *manualTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = target
}

// leakyClock ignores Stop and runs every callback on Flush, as a loop would
// when a stopped timer's callback is already queued.
type leakyClock struct {
	queued []func()
}

type noopStopper struct{}

func (noopStopper) Stop() bool { return false }

func (c *leakyClock) AfterFunc(_ time.Duration, f func()) Stopper {
	c.queued = append(c.queued, f)
	return noopStopper{}
}

func (c *leakyClock) Flush() {
	queued := c.queued
	c.queued = nil
	for _, f := range queued {
		f()
	}
}

type eventLog struct {
	events []string
}

func (l *eventLog) observer() Observer {
	return ObserverFuncs{
		OnOverlayRequested: func(id, base string) {
			l.events = append(l.events, fmt.Sprintf("requested:%s:%s", id, base))
		},
		OnOverlayClosed: func() {
			l.events = append(l.events, "closed")
		},
		OnOverlayVisibleChanged: func(v bool) {
			l.events = append(l.events, fmt.Sprintf("visible:%t", v))
		},
		OnActiveTriggerChanged: func(id string) {
			l.events = append(l.events, "trigger:"+id)
		},
		OnPendingTextChanged: func(text string) {
			l.events = append(l.events, "pending:"+text)
		},
	}
}

func (l *eventLog) reset() { l.events = nil }

func letter(r rune) KeyEvent {
	ev := KeyEvent{Key: Key(unicode.ToUpper(r)), Text: string(r)}
	if unicode.IsUpper(r) {
		ev.Modifiers = ModShift
	}
	return ev
}

func digit(n int) KeyEvent {
	return KeyEvent{Key: Key0 + Key(n), Text: strconv.Itoa(n)}
}

func special(k Key) KeyEvent {
	return KeyEvent{Key: k}
}

type fixture struct {
	ctrl  *Controller
	port  *recordingPort
	clock *manualClock
	long  *LongPressTrigger
	log   *eventLog
}

func newFixture() *fixture {
	f := &fixture{
		port:  &recordingPort{},
		clock: &manualClock{},
		long:  NewLongPressTrigger(DefaultHoldThreshold),
		log:   &eventLog{},
	}
	f.ctrl = NewController(f.port, f.clock, WithObserver(f.log.observer()))
	f.ctrl.Register(f.long)
	return f
}

// hold presses r and waits out the hold threshold.
func (f *fixture) hold(r rune) {
	f.ctrl.ProcessKeyPress(letter(r))
	f.clock.Advance(DefaultHoldThreshold)
}
