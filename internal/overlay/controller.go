package overlay

import (
	"log/slog"
	"time"
	"unicode/utf8"
)

// DefaultSettleDelay is how long surrounding-text updates are still treated
// as echoes of the controller's own commit after the echo credit is used up.
// It is well above a local Wayland or D-Bus roundtrip and well below any
// usable hold threshold.
const DefaultSettleDelay = 100 * time.Millisecond

// State is the coarse controller state.
type State int

const (
	StateIdle State = iota
	StatePendingTimer
	StateOverlayOpen
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePendingTimer:
		return "PendingTimer"
	case StateOverlayOpen:
		return "OverlayOpen"
	default:
		return "Unknown"
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for transition tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.settleDelay = d
		}
	}
}

// WithObserver registers an observer at construction.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.Observe(o)
	}
}

// Controller is the overlay state machine. It owns the pending key, overlay
// visibility, both timers and the echo-suppression bookkeeping, and it is
// the only component that talks to the TextCommitPort.
//
// A Controller is not safe for concurrent use. All methods, and all timer
// callbacks delivered through the Scheduler, must run on one goroutine.
type Controller struct {
	port       TextCommitPort
	log        *slog.Logger
	triggers   []Trigger
	observers  []Observer
	candidates *Candidates

	hold        *timer
	settle      *timer
	settleDelay time.Duration

	visible         bool
	activeTriggerID string

	pendingText        string
	pendingKey         Key
	pendingTrigger     Trigger
	pendingKeyReleased bool

	// Keys whose next release must be consumed because their press was
	// consumed and their pending state has since been discarded.
	swallow map[Key]struct{}

	// Surrounding-text updates still expected from our own commits. Only
	// commits produce an update; deletes do not.
	echoCredit uint
}

var _ Query = (*Controller)(nil)

// NewController creates a controller writing to port. port may be nil, in
// which case commits and deletes are skipped.
func NewController(port TextCommitPort, sched Scheduler, opts ...Option) *Controller {
	c := &Controller{
		port:        port,
		log:         slog.New(slog.DiscardHandler),
		candidates:  NewCandidates(),
		settleDelay: DefaultSettleDelay,
		swallow:     make(map[Key]struct{}),
	}
	c.hold = newTimer(sched, c.onHoldExpired)
	c.settle = newTimer(sched, func() {})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetPort replaces the text-commit port.
func (c *Controller) SetPort(port TextCommitPort) {
	c.port = port
}

// SetSettleDelay changes the echo settle window. It applies from the next
// commit on; non-positive values are ignored.
func (c *Controller) SetSettleDelay(d time.Duration) {
	if d > 0 {
		c.settleDelay = d
	}
}

// SettleDelay returns the echo settle window.
func (c *Controller) SettleDelay() time.Duration { return c.settleDelay }

// Register appends a trigger. Triggers are evaluated in registration order
// and the first one producing a result wins.
func (c *Controller) Register(t Trigger) {
	if t == nil {
		return
	}
	c.triggers = append(c.triggers, t)
}

// Triggers returns the registered triggers in evaluation order.
func (c *Controller) Triggers() []Trigger {
	out := make([]Trigger, len(c.triggers))
	copy(out, c.triggers)
	return out
}

// Trigger returns the registered trigger with the given ID.
func (c *Controller) Trigger(id string) (Trigger, bool) {
	for _, t := range c.triggers {
		if t.ID() == id {
			return t, true
		}
	}
	return nil, false
}

// Observe registers an observer.
func (c *Controller) Observe(o Observer) {
	if o != nil {
		c.observers = append(c.observers, o)
	}
}

// OverlayVisible reports whether an overlay is shown.
func (c *Controller) OverlayVisible() bool { return c.visible }

// ActiveTriggerID returns the ID of the trigger whose overlay is shown.
func (c *Controller) ActiveTriggerID() string { return c.activeTriggerID }

// PendingText returns the optimistically committed base text.
func (c *Controller) PendingText() string { return c.pendingText }

// PendingKey returns the key that produced the pending text.
func (c *Controller) PendingKey() Key { return c.pendingKey }

// Candidates returns the candidate collection for the current overlay.
func (c *Controller) Candidates() *Candidates { return c.candidates }

// EchoCredit returns the number of surrounding-text echoes still expected.
func (c *Controller) EchoCredit() uint { return c.echoCredit }

// SettleArmed reports whether the echo settle window is open.
func (c *Controller) SettleArmed() bool { return c.settle.isActive() }

// HoldTimerActive reports whether a hold timer is running.
func (c *Controller) HoldTimerActive() bool { return c.hold.isActive() }

// State returns the coarse state.
func (c *Controller) State() State {
	switch {
	case c.visible:
		return StateOverlayOpen
	case c.pendingText != "":
		return StatePendingTimer
	default:
		return StateIdle
	}
}

// ProcessKeyPress handles a key press and reports whether it was consumed.
func (c *Controller) ProcessKeyPress(ev KeyEvent) bool {
	if !ev.Valid() {
		return false
	}

	if c.visible {
		if ev.Key == KeyEscape {
			c.log.Debug("escape pressed while overlay open; cancelling")
			c.Cancel()
			return true
		}

		if ev.Key >= Key1 && ev.Key <= Key9 {
			index := int(ev.Key - Key1)
			if index < c.candidates.Len() {
				c.log.Debug("number key selects candidate", "index", index)
				c.CommitCandidate(index)
				return true
			}
			// Beyond the candidate count: treated like any other key.
		}

		if c.pendingKey != KeyNone && ev.Key == c.pendingKey {
			return true
		}

		c.Cancel()
		// Fall through and process the key from Idle.
	}

	if c.pendingText != "" {
		// Raw key events on this path carry no auto-repeat flag, so a press
		// of the pending key is the repeat signal.
		if ev.Key == c.pendingKey {
			c.log.Debug("suppressing repeat press of pending key", "key", ev.Key)
			return true
		}
		c.flush()
	}

	for _, t := range c.triggers {
		if !t.Enabled() {
			continue
		}
		res := t.ProcessEvent(EventKeyPress, &ev, ev.Text, c)
		if !res.IsZero() {
			c.execute(res, t)
			if res.Consume && res.Action == ActionReplaceText {
				// The confirmation key never reached the client.
				c.swallow[ev.Key] = struct{}{}
			}
			return res.Consume
		}
	}
	return false
}

// ProcessKeyRelease handles a key release and reports whether it was consumed.
func (c *Controller) ProcessKeyRelease(ev KeyEvent) bool {
	if !ev.Valid() {
		return false
	}

	if _, ok := c.swallow[ev.Key]; ok {
		if !ev.AutoRepeat {
			c.log.Debug("swallowing release of discarded key", "key", ev.Key)
			delete(c.swallow, ev.Key)
		}
		return true
	}

	if c.pendingText != "" && ev.Key == c.pendingKey {
		c.hold.stop()

		if c.visible {
			// The user may still pick a candidate after letting go.
			c.pendingKeyReleased = true
			return true
		}

		// The base character went out on press; there is nothing to commit.
		c.log.Debug("pending key released before threshold", "key", ev.Key)
		before := c.snapshot()
		if c.pendingTrigger != nil {
			c.pendingTrigger.Reset()
		}
		c.clearState()
		c.publish(before)
		return true
	}

	for _, t := range c.triggers {
		if !t.Enabled() {
			continue
		}
		res := t.ProcessEvent(EventKeyRelease, &ev, ev.Text, c)
		if !res.IsZero() {
			c.execute(res, t)
			return res.Consume
		}
	}
	return false
}

// ProcessPreeditChanged feeds a preedit update to the triggers and reports
// whether one of them acted.
func (c *Controller) ProcessPreeditChanged(preedit string) bool {
	return c.dispatchText(EventPreeditChanged, preedit)
}

// ProcessTextCommitted feeds committed text to the triggers and reports
// whether one of them acted.
func (c *Controller) ProcessTextCommitted(text string) bool {
	return c.dispatchText(EventTextCommitted, text)
}

func (c *Controller) dispatchText(kind EventKind, text string) bool {
	for _, t := range c.triggers {
		if !t.Enabled() {
			continue
		}
		res := t.ProcessEvent(kind, nil, text, c)
		if res.Action != ActionNone {
			c.execute(res, t)
			return true
		}
	}
	return false
}

// HandleSurroundingTextChanged tells the controller that the client reported
// new surrounding text. Updates caused by our own commits are absorbed; any
// other update means the cursor moved externally and a running hold timer or
// open overlay no longer applies.
func (c *Controller) HandleSurroundingTextChanged() {
	if c.echoCredit > 0 {
		c.echoCredit--
		c.log.Debug("ignoring self-caused surrounding-text update", "remaining", c.echoCredit)
		return
	}

	// Some clients send several updates per commit. Once the credit is gone
	// the settle window absorbs the rest; a cursor-position comparison is not
	// reliable because those clients also shift the reported text window.
	if c.settle.isActive() {
		c.log.Debug("ignoring extra surrounding-text echo within settle window")
		return
	}

	if c.hold.isActive() || c.visible {
		c.log.Debug("external cursor move while overlay active; cancelling")
		c.Cancel()
	}
}

// CommitCandidate commits the candidate at index, replacing the pending text.
// Out-of-range indexes are ignored.
func (c *Controller) CommitCandidate(index int) {
	text := c.candidates.InsertTextAt(index)
	if text == "" {
		return
	}
	c.CommitText(text)
}

// CommitText replaces the pending text with text and closes the overlay.
func (c *Controller) CommitText(text string) {
	if text == "" {
		return
	}
	c.log.Debug("committing overlay selection", "text", text)

	// The base character is still in the field. Delete it and commit the
	// replacement back to back so the deferred delete binds to this commit.
	c.replace(utf8.RuneCountInString(c.pendingText), text)

	before := c.snapshot()
	if !c.pendingKeyReleased {
		c.markSwallow()
	}
	c.resetTriggers()
	c.clearState()
	if before.visible {
		c.emitClosed()
	}
	c.publish(before)
}

// Cancel closes the overlay or stops the hold timer without touching the
// text. The base character committed on press stays as typed.
func (c *Controller) Cancel() {
	before := c.snapshot()
	if c.pendingText != "" && !c.pendingKeyReleased {
		c.markSwallow()
	}
	c.resetTriggers()
	c.clearState()
	c.clearEcho()
	if before.visible {
		c.emitClosed()
	}
	c.publish(before)
}

// Reset cancels everything and also forgets pending release swallows. Used
// when the input context goes away.
func (c *Controller) Reset() {
	c.Cancel()
	if len(c.swallow) > 0 {
		c.swallow = make(map[Key]struct{})
	}
}

// OpenOverlay shows an overlay for triggerID with the given candidates. With
// no candidates the pending state is dropped instead and the base text stays
// as typed.
func (c *Controller) OpenOverlay(triggerID, baseText string, candidates []string) {
	c.openOverlay(triggerID, baseText, "", candidates)
}

func (c *Controller) openOverlay(triggerID, baseText, query string, candidates []string) {
	if len(candidates) == 0 {
		c.discardPending()
		return
	}

	before := c.snapshot()
	c.hold.stop()
	c.visible = true
	c.activeTriggerID = triggerID
	c.pendingText = baseText

	c.candidates.SetTriggerID(triggerID)
	c.candidates.SetStrings(candidates)
	c.candidates.SetQuery(query)

	c.publish(before)
	for _, o := range c.observers {
		o.OverlayRequested(triggerID, baseText)
	}
}

func (c *Controller) onHoldExpired() {
	if c.pendingText == "" || c.pendingTrigger == nil {
		return
	}

	t := c.pendingTrigger
	res := t.ProcessEvent(EventTimerExpired, nil, c.pendingText, c)
	if res.Action == ActionNone {
		c.discardPending()
		return
	}

	// Opening the overlay leaves the base character in place. It is replaced
	// by delete+commit on selection; a delete sent now would be deferred onto
	// some later, unrelated commit.
	c.execute(res, t)
}

func (c *Controller) execute(res Result, t Trigger) {
	switch res.Action {
	case ActionOpenOverlay:
		base := c.pendingText
		if res.PendingText != "" {
			base = res.PendingText
		}
		lookup := base
		if res.Query != "" {
			lookup = res.Query
		}
		c.openOverlay(t.ID(), base, res.Query, t.Candidates(lookup))

	case ActionCloseOverlay:
		c.Cancel()

	case ActionCommitText:
		if res.CommitText != "" {
			c.CommitText(res.CommitText)
		} else if c.pendingText != "" {
			c.CommitText(c.pendingText)
		}

	case ActionReplaceText:
		c.log.Debug("replacing text", "trigger", t.ID(), "delete", res.DeleteBeforeCursor, "text", res.CommitText)
		c.replace(res.DeleteBeforeCursor, res.CommitText)
		before := c.snapshot()
		if c.pendingText != "" && !c.pendingKeyReleased {
			c.markSwallow()
		}
		c.resetTriggers()
		c.clearState()
		if before.visible {
			c.emitClosed()
		}
		c.publish(before)

	case ActionStartTimer:
		c.startPending(res, t)

	case ActionConsumeEvent, ActionNone:
	}
}

func (c *Controller) startPending(res Result, t Trigger) {
	before := c.snapshot()

	// Key rollover. The old character is already in the field; only its
	// release needs swallowing.
	if c.pendingText != "" {
		c.log.Debug("new pending key arrived; flushing", "old", c.pendingText)
		c.hold.stop()
		if !c.pendingKeyReleased {
			c.markSwallow()
		}
	}

	// Triggers registered after the owner never saw this key.
	for _, other := range c.triggers {
		if other != t {
			other.Reset()
		}
	}

	c.pendingText = res.PendingText
	c.pendingKey = res.PendingKey
	c.pendingTrigger = t
	c.pendingKeyReleased = false
	if res.TimerDuration > 0 {
		c.log.Debug("starting hold timer", "text", c.pendingText, "duration", res.TimerDuration)
		c.hold.start(res.TimerDuration)
	}

	// Commit right away for zero-latency display. Forwarding the raw key
	// instead would start client-side key repeat.
	if c.pendingText != "" {
		c.commit(c.pendingText)
	}
	c.publish(before)
}

// flush drops the pending state of a key that is still held because another
// key was pressed.
func (c *Controller) flush() {
	before := c.snapshot()
	c.log.Debug("flushing pending key", "key", c.pendingKey, "text", c.pendingText)
	c.hold.stop()
	if !c.pendingKeyReleased {
		c.markSwallow()
	}
	if c.pendingTrigger != nil {
		c.pendingTrigger.Reset()
	}
	c.clearState()
	c.publish(before)
}

// discardPending drops the pending state when there is nothing to show.
func (c *Controller) discardPending() {
	before := c.snapshot()
	if c.pendingText != "" && !c.pendingKeyReleased {
		c.markSwallow()
	}
	if c.pendingTrigger != nil {
		c.pendingTrigger.Reset()
	}
	c.clearState()
	c.publish(before)
}

// commit sends text and books the echo it will cause.
func (c *Controller) commit(text string) {
	if c.port == nil || text == "" {
		return
	}
	c.expectEcho()
	c.port.Commit(text)
}

// replace deletes n characters before the cursor and commits text, with no
// other port call in between. Without replacement text nothing is sent: a
// lone delete would be applied to whatever is committed next.
func (c *Controller) replace(n int, text string) {
	if c.port == nil || text == "" {
		return
	}
	c.expectEcho()
	if n > 0 {
		c.port.DeleteSurroundingText(-n, uint(n))
	}
	c.port.Commit(text)
}

func (c *Controller) expectEcho() {
	c.echoCredit++
	c.settle.start(c.settleDelay)
}

func (c *Controller) clearEcho() {
	c.echoCredit = 0
	c.settle.stop()
}

func (c *Controller) markSwallow() {
	if c.pendingKey != KeyNone {
		c.swallow[c.pendingKey] = struct{}{}
	}
}

func (c *Controller) resetTriggers() {
	for _, t := range c.triggers {
		t.Reset()
	}
}

// clearState drops pending and overlay state and stops the hold timer. Echo
// bookkeeping survives; commits already sent still echo.
func (c *Controller) clearState() {
	c.hold.stop()
	c.visible = false
	c.activeTriggerID = ""
	c.pendingText = ""
	c.pendingKey = KeyNone
	c.pendingTrigger = nil
	c.pendingKeyReleased = false
	c.candidates.Clear()
	c.candidates.SetTriggerID("")
}

type snapshot struct {
	visible bool
	trigger string
	pending string
}

func (c *Controller) snapshot() snapshot {
	return snapshot{visible: c.visible, trigger: c.activeTriggerID, pending: c.pendingText}
}

// publish notifies observers of every property that differs from before.
func (c *Controller) publish(before snapshot) {
	for _, o := range c.observers {
		if before.visible != c.visible {
			o.OverlayVisibleChanged(c.visible)
		}
		if before.trigger != c.activeTriggerID {
			o.ActiveTriggerChanged(c.activeTriggerID)
		}
		if before.pending != c.pendingText {
			o.PendingTextChanged(c.pendingText)
		}
	}
}

func (c *Controller) emitClosed() {
	for _, o := range c.observers {
		o.OverlayClosed()
	}
}
