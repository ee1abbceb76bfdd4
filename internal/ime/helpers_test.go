package ime

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"kboverlay/internal/overlay"
)

type inlineExec struct{ err error }

func (x inlineExec) Call(_ context.Context, f func()) error {
	if x.err != nil {
		return x.err
	}
	f()
	return nil
}

type signal struct {
	path   dbus.ObjectPath
	name   string
	values []any
}

type fakeEmitter struct {
	signals []signal
}

func (f *fakeEmitter) Emit(path dbus.ObjectPath, name string, values ...any) error {
	f.signals = append(f.signals, signal{
		path:   path,
		name:   strings.TrimPrefix(name, IBusEngineInterface+"."),
		values: values,
	})
	return nil
}

func (f *fakeEmitter) names() []string {
	out := make([]string, len(f.signals))
	for i, s := range f.signals {
		out[i] = s.name
	}
	return out
}

// text returns the IBusText carried by signal i.
func (f *fakeEmitter) text(t *testing.T, i int) string {
	t.Helper()
	v, ok := f.signals[i].values[0].(dbus.Variant)
	if !ok {
		t.Fatalf("signal %d (%s) carries %T", i, f.signals[i].name, f.signals[i].values[0])
	}
	s, err := TextFromVariant(v)
	if err != nil {
		t.Fatalf("signal %d: %v", i, err)
	}
	return s
}

func (f *fakeEmitter) reset() { f.signals = nil }

// manualClock fires callbacks in deadline order when advanced.
type manualClock struct {
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	at   time.Duration
	f    func()
	done bool
}

func (t *manualTimer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) overlay.Stopper {
	t := &manualTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	target := c.now + d
	for {
		var next *manualTimer
		for _, t := range c.timers {
			if t.done || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		next.done = true
		next.f()
	}
	c.now = target
}

type harness struct {
	e     *Engine
	em    *fakeEmitter
	clock *manualClock
}

func newHarness(s Settings, opts ...Option) *harness {
	h := &harness{em: &fakeEmitter{}, clock: &manualClock{}}
	opts = append([]Option{WithSettings(s)}, opts...)
	h.e = NewEngine("/org/freedesktop/IBus/Engine/1", h.em, inlineExec{}, h.clock, opts...)
	return h
}

func (h *harness) press(keyval uint32) bool {
	handled, _ := h.e.ProcessKeyEvent(keyval, 0, 0)
	return handled
}

func (h *harness) release(keyval uint32) bool {
	handled, _ := h.e.ProcessKeyEvent(keyval, 0, IBusReleaseMask)
	return handled
}

// typeText presses and releases each ASCII character of s.
func (h *harness) typeText(s string) {
	for _, r := range s {
		h.press(uint32(r))
		h.release(uint32(r))
	}
}

func plainSettings() Settings {
	s := DefaultSettings()
	s.DiacriticsEnabled = false
	return s
}
