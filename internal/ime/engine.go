package ime

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/godbus/dbus/v5"

	"kboverlay/internal/overlay"
)

// IBus D-Bus names.
const (
	IBusService          = "org.freedesktop.IBus"
	IBusPath             = "/org/freedesktop/IBus"
	IBusFactoryPath      = "/org/freedesktop/IBus/Factory"
	IBusFactoryInterface = "org.freedesktop.IBus.Factory"
	IBusEngineInterface  = "org.freedesktop.IBus.Engine"
)

// IBus capability and input purpose values.
const (
	CapSurroundingText uint32 = 1 << 5

	PurposePassword uint32 = 8
	PurposePIN      uint32 = 9
)

const (
	defaultCallTimeout = 2 * time.Second

	// feedDelay lets the client apply a passed-through key before the
	// recent input is offered to the text triggers.
	feedDelay = 10 * time.Millisecond

	maxRecentInput = 64
)

// Emitter sends D-Bus signals. *dbus.Conn satisfies it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...any) error
}

// Executor runs f on the goroutine that owns the controller and waits for
// it. *loop.Loop satisfies it.
type Executor interface {
	Call(ctx context.Context, f func()) error
}

// Stats counts engine activity.
type Stats struct {
	KeyEvents     uint64
	KeysConsumed  uint64
	Commits       uint64
	Deletes       uint64
	OverlaysShown uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCallTimeout bounds how long a D-Bus method waits for the executor.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCandidateSource sets the emoji search backend.
func WithCandidateSource(src overlay.CandidateSource) Option {
	return func(e *Engine) {
		e.prefix.SetSource(src)
	}
}

// WithSettings applies s at construction.
func WithSettings(s Settings) Option {
	return func(e *Engine) {
		e.settings = s
	}
}

// WithOrientation sets the lookup table orientation.
func WithOrientation(o int32) Option {
	return func(e *Engine) {
		e.orientation = o
	}
}

// Engine is one IBus engine object. It feeds IBus method calls into an
// overlay.Controller, implements the controller's text-commit port with
// CommitText and DeleteSurroundingText signals, and renders candidates as
// an IBus lookup table.
//
// The exported D-Bus methods may be called from any goroutine; each hands
// its work to the Executor and waits. Apply, Stats and RecentInput must run
// on the Executor's goroutine.
type Engine struct {
	path        dbus.ObjectPath
	emitter     Emitter
	exec        Executor
	sched       overlay.Scheduler
	log         *slog.Logger
	timeout     time.Duration
	orientation int32
	settings    Settings

	ctrl      *overlay.Controller
	mods      *overlay.ModifierState
	longPress *overlay.LongPressTrigger
	prefix    *overlay.PrefixQueryTrigger
	expansion *overlay.TextExpansionTrigger

	enabled   bool
	focused   bool
	sensitive bool
	caps      uint32

	// Text typed since the last word boundary, as far as the engine can
	// tell. Deletes before the cursor are applied on the next commit.
	recent    []rune
	trim      int
	dirty     bool
	feedArmed bool

	tableShown bool
	shownItems []string
	auxShown   string

	onDestroy func(dbus.ObjectPath)
	stats     Stats
}

// NewEngine creates an engine exported at path.
func NewEngine(path dbus.ObjectPath, emitter Emitter, exec Executor, sched overlay.Scheduler, opts ...Option) *Engine {
	e := &Engine{
		path:        path,
		emitter:     emitter,
		exec:        exec,
		sched:       sched,
		log:         slog.New(slog.DiscardHandler),
		timeout:     defaultCallTimeout,
		orientation: OrientationSystem,
		settings:    DefaultSettings(),
		mods:        overlay.NewModifierState(),
		longPress:   overlay.NewLongPressTrigger(overlay.DefaultHoldThreshold),
		prefix:      overlay.NewPrefixQueryTrigger(),
		expansion:   overlay.NewTextExpansionTrigger(),
		enabled:     true,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("engine", string(path))

	e.ctrl = overlay.NewController(enginePort{e}, sched,
		overlay.WithLogger(e.log),
		overlay.WithObserver(overlay.ObserverFuncs{
			OnOverlayVisibleChanged: e.overlayVisibleChanged,
		}),
	)
	e.ctrl.Register(e.longPress)
	e.ctrl.Register(e.prefix)
	e.ctrl.Register(e.expansion)
	e.ctrl.Candidates().Subscribe(e.candidatesChanged)

	e.Apply(e.settings)
	return e
}

// Path returns the engine's object path.
func (e *Engine) Path() dbus.ObjectPath { return e.path }

// Controller returns the overlay controller.
func (e *Engine) Controller() *overlay.Controller { return e.ctrl }

// Modifiers returns the engine's modifier state.
func (e *Engine) Modifiers() *overlay.ModifierState { return e.mods }

// RecentInput returns the tracked text since the last word boundary.
func (e *Engine) RecentInput() string { return string(e.recent) }

// Stats returns a copy of the activity counters.
func (e *Engine) Stats() Stats { return e.stats }

// Apply installs new settings. An open overlay or pending key is cancelled
// first.
func (e *Engine) Apply(s Settings) {
	if e.ctrl.State() != overlay.StateIdle {
		e.ctrl.Cancel()
	}
	e.settings = s

	e.longPress.SetEnabled(s.DiacriticsEnabled)
	e.longPress.SetHoldThreshold(s.HoldThreshold)
	e.longPress.SetTable(s.Diacritics)

	e.prefix.SetEnabled(s.EmojiEnabled)
	e.prefix.SetPrefix(s.EmojiPrefix)
	e.prefix.SetMinQueryLength(s.EmojiMinQueryLength)

	e.expansion.SetEnabled(s.ExpansionEnabled)
	e.expansion.SetRequiresTriggerKey(s.RequireTriggerKey)
	e.expansion.SetTriggerKey(s.TriggerKey)
	e.expansion.SetExpansions(s.Expansions)

	e.ctrl.SetSettleDelay(s.SettleDelay)
}

// Settings returns the settings last applied.
func (e *Engine) Settings() Settings { return e.settings }

// SetCandidateSource replaces the emoji search backend.
func (e *Engine) SetCandidateSource(src overlay.CandidateSource) {
	e.prefix.SetSource(src)
}

func (e *Engine) call(method string, f func()) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.exec.Call(ctx, f); err != nil {
		e.log.Warn("dispatch failed", "method", method, "error", err)
		return dbus.MakeFailedError(err)
	}
	return nil
}

// =============================================================================
// org.freedesktop.IBus.Engine methods
// =============================================================================

// ProcessKeyEvent handles a key press or release. It returns true when the
// key was consumed; on dispatch failure the key passes through.
//
// A key whose dispatch times out before it starts is dropped, never run
// late: the client already got it back as unconsumed. One that has started
// is waited for.
func (e *Engine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	const (
		queued int32 = iota
		started
		abandoned
	)
	var (
		phase   atomic.Int32
		handled atomic.Bool
		done    = make(chan struct{})
	)
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	err := e.exec.Call(ctx, func() {
		if !phase.CompareAndSwap(queued, started) {
			return
		}
		defer close(done)
		handled.Store(e.processKey(keyval, state))
	})
	if err == nil {
		return handled.Load(), nil
	}
	if phase.CompareAndSwap(queued, abandoned) {
		e.log.Warn("dispatch failed; key passed through", "method", "ProcessKeyEvent", "error", err)
		return false, nil
	}
	<-done
	return handled.Load(), nil
}

func (e *Engine) processKey(keyval, state uint32) bool {
	e.stats.KeyEvents++
	e.mods.Set(ModifiersFromState(state))

	if !e.enabled || e.sensitive || isModifierKeysym(keyval) {
		return false
	}

	ev := TranslateKey(keyval, state)
	var consumed bool
	if IsRelease(state) {
		consumed = e.ctrl.ProcessKeyRelease(ev)
	} else {
		consumed = e.ctrl.ProcessKeyPress(ev)
		if !consumed {
			e.passThrough(ev)
		}
	}
	if consumed {
		e.stats.KeysConsumed++
	}
	e.log.Debug("key", "key", ev.Key.String(), "release", IsRelease(state),
		"consumed", consumed, "state", e.ctrl.State().String())

	e.scheduleFeed()
	return consumed
}

// SetSurroundingText is the client's report of the text around the cursor.
// Only the fact that it changed is used.
func (e *Engine) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	return e.call("SetSurroundingText", func() {
		e.ctrl.HandleSurroundingTextChanged()
	})
}

// FocusIn is called when the input context gains focus.
func (e *Engine) FocusIn() *dbus.Error {
	return e.call("FocusIn", func() {
		e.focused = true
		e.log.Debug("focus in")
		e.requireSurroundingText()
	})
}

// FocusOut is called when the input context loses focus.
func (e *Engine) FocusOut() *dbus.Error {
	return e.call("FocusOut", func() {
		e.focused = false
		e.resetAll()
		e.log.Debug("focus out")
	})
}

// Reset is called when the client resets its input state.
func (e *Engine) Reset() *dbus.Error {
	return e.call("Reset", e.resetAll)
}

// Enable is called when the engine is switched on.
func (e *Engine) Enable() *dbus.Error {
	return e.call("Enable", func() {
		e.enabled = true
		e.log.Debug("enabled")
		e.requireSurroundingText()
	})
}

// Disable is called when the engine is switched off.
func (e *Engine) Disable() *dbus.Error {
	return e.call("Disable", func() {
		e.enabled = false
		e.resetAll()
		e.log.Debug("disabled")
	})
}

// SetCapabilities records the client capabilities.
func (e *Engine) SetCapabilities(caps uint32) *dbus.Error {
	return e.call("SetCapabilities", func() {
		gained := caps&CapSurroundingText != 0 && e.caps&CapSurroundingText == 0
		e.caps = caps
		e.log.Debug("capabilities", "caps", caps, "surrounding", caps&CapSurroundingText != 0)
		if gained && e.focused {
			e.requireSurroundingText()
		}
	})
}

// requireSurroundingText asks the input context to start reporting the text
// around the cursor. IBus forwards SetSurroundingText only after this.
func (e *Engine) requireSurroundingText() {
	if e.caps&CapSurroundingText == 0 {
		return
	}
	e.emit("RequireSurroundingText")
}

// SetCursorLocation is ignored; the IBus panel positions the lookup table.
func (e *Engine) SetCursorLocation(x, y, w, h int32) *dbus.Error {
	return nil
}

// SetContentType switches the engine off for password and PIN fields.
func (e *Engine) SetContentType(purpose, hints uint32) *dbus.Error {
	return e.call("SetContentType", func() {
		sensitive := purpose == PurposePassword || purpose == PurposePIN
		if sensitive && !e.sensitive {
			e.resetAll()
		}
		e.sensitive = sensitive
		e.log.Debug("content type", "purpose", purpose, "hints", hints)
	})
}

// PropertyActivate handles property activations. The engine has none.
func (e *Engine) PropertyActivate(propName string, state uint32) *dbus.Error {
	return nil
}

// PageUp is a no-op: every candidate fits on one page.
func (e *Engine) PageUp() *dbus.Error { return nil }

// PageDown is a no-op: every candidate fits on one page.
func (e *Engine) PageDown() *dbus.Error { return nil }

// CursorUp is a no-op; candidates are picked by digit or click.
func (e *Engine) CursorUp() *dbus.Error { return nil }

// CursorDown is a no-op; candidates are picked by digit or click.
func (e *Engine) CursorDown() *dbus.Error { return nil }

// CandidateClicked commits the clicked candidate.
func (e *Engine) CandidateClicked(index, button, state uint32) *dbus.Error {
	return e.call("CandidateClicked", func() {
		if e.ctrl.OverlayVisible() {
			e.ctrl.CommitCandidate(int(index))
		}
	})
}

// Destroy tears the engine down and removes it from its factory.
func (e *Engine) Destroy() *dbus.Error {
	return e.call("Destroy", func() {
		e.resetAll()
		if e.onDestroy != nil {
			e.onDestroy(e.path)
		}
	})
}

func (e *Engine) resetAll() {
	e.ctrl.Reset()
	e.clearRecent()
	e.hideTable()
}

// =============================================================================
// Recent input
// =============================================================================

func (e *Engine) passThrough(ev overlay.KeyEvent) {
	r, single := ev.SingleRune()
	switch {
	case ev.Key == overlay.KeyBackspace:
		if n := len(e.recent); n > 0 {
			e.recent = e.recent[:n-1]
		}
	case !ev.Modifiers.ShiftOnly():
		e.clearRecent()
	case single:
		e.appendRecent(string(r))
	default:
		e.clearRecent()
	}
	e.dirty = true
}

func (e *Engine) appendRecent(text string) {
	for _, r := range text {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			e.recent = e.recent[:0]
			continue
		}
		e.recent = append(e.recent, r)
	}
	if n := len(e.recent); n > maxRecentInput {
		e.recent = append(e.recent[:0], e.recent[n-maxRecentInput:]...)
	}
}

func (e *Engine) clearRecent() {
	e.recent = e.recent[:0]
	e.trim = 0
	e.dirty = false
}

func (e *Engine) scheduleFeed() {
	if !e.dirty || e.feedArmed || e.sched == nil {
		return
	}
	e.feedArmed = true
	e.sched.AfterFunc(feedDelay, e.feed)
}

// feed offers the recent input to the text triggers once the controller is
// idle. While a key is pending it waits for the next event.
func (e *Engine) feed() {
	e.feedArmed = false
	if !e.dirty || e.ctrl.State() != overlay.StateIdle {
		return
	}
	e.dirty = false
	e.ctrl.ProcessTextCommitted(string(e.recent))
}

// =============================================================================
// Text-commit port
// =============================================================================

type enginePort struct{ e *Engine }

func (p enginePort) Commit(text string) {
	e := p.e
	if err := e.emitter.Emit(e.path, IBusEngineInterface+".CommitText", NewText(text)); err != nil {
		e.log.Warn("emit CommitText failed", "error", err)
	}
	e.stats.Commits++

	if e.trim > 0 {
		if e.trim >= len(e.recent) {
			e.recent = e.recent[:0]
		} else {
			e.recent = e.recent[:len(e.recent)-e.trim]
		}
		e.trim = 0
	}
	e.appendRecent(text)
	e.dirty = true
}

func (p enginePort) DeleteSurroundingText(offset int, length uint) {
	e := p.e
	if err := e.emitter.Emit(e.path, IBusEngineInterface+".DeleteSurroundingText", int32(offset), uint32(length)); err != nil {
		e.log.Warn("emit DeleteSurroundingText failed", "error", err)
	}
	e.stats.Deletes++

	if offset < 0 && offset+int(length) == 0 {
		e.trim += int(length)
	} else {
		e.recent = e.recent[:0]
	}
}

// =============================================================================
// Lookup table
// =============================================================================

func (e *Engine) overlayVisibleChanged(visible bool) {
	if visible {
		e.stats.OverlaysShown++
		e.showTable()
		return
	}
	e.hideTable()
}

func (e *Engine) candidatesChanged() {
	if e.ctrl.OverlayVisible() {
		e.showTable()
	}
}

func (e *Engine) showTable() {
	items := e.ctrl.Candidates().Displays()
	if len(items) == 0 {
		e.hideTable()
		return
	}
	if !e.tableShown || !slices.Equal(items, e.shownItems) {
		e.emit("UpdateLookupTable", NewLookupTable(items, e.orientation), true)
		e.tableShown = true
		e.shownItems = items
	}

	aux := ""
	if q := e.ctrl.Candidates().Query(); q != "" {
		aux = e.prefix.Prefix() + q
	}
	switch {
	case aux == e.auxShown:
	case aux == "":
		e.emit("HideAuxiliaryText")
	default:
		e.emit("UpdateAuxiliaryText", NewText(aux), true)
	}
	e.auxShown = aux
}

func (e *Engine) hideTable() {
	if e.tableShown {
		e.emit("HideLookupTable")
		e.tableShown = false
		e.shownItems = nil
	}
	if e.auxShown != "" {
		e.emit("HideAuxiliaryText")
		e.auxShown = ""
	}
}

func (e *Engine) emit(signal string, values ...any) {
	if err := e.emitter.Emit(e.path, IBusEngineInterface+"."+signal, values...); err != nil {
		e.log.Warn("emit failed", "signal", signal, "error", err)
	}
}
