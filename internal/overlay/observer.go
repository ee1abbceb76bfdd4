package overlay

// Observer receives controller notifications. Every notification is
// delivered after the state it describes has been updated, on the same
// goroutine that drives the controller.
type Observer interface {
	OverlayRequested(triggerID, baseText string)
	OverlayClosed()
	OverlayVisibleChanged(visible bool)
	ActiveTriggerChanged(triggerID string)
	PendingTextChanged(text string)
}

// ObserverFuncs adapts optional functions to the Observer interface.
// Nil fields are skipped.
type ObserverFuncs struct {
	OnOverlayRequested      func(triggerID, baseText string)
	OnOverlayClosed         func()
	OnOverlayVisibleChanged func(visible bool)
	OnActiveTriggerChanged  func(triggerID string)
	OnPendingTextChanged    func(text string)
}

var _ Observer = ObserverFuncs{}

func (f ObserverFuncs) OverlayRequested(triggerID, baseText string) {
	if f.OnOverlayRequested != nil {
		f.OnOverlayRequested(triggerID, baseText)
	}
}

func (f ObserverFuncs) OverlayClosed() {
	if f.OnOverlayClosed != nil {
		f.OnOverlayClosed()
	}
}

func (f ObserverFuncs) OverlayVisibleChanged(visible bool) {
	if f.OnOverlayVisibleChanged != nil {
		f.OnOverlayVisibleChanged(visible)
	}
}

func (f ObserverFuncs) ActiveTriggerChanged(triggerID string) {
	if f.OnActiveTriggerChanged != nil {
		f.OnActiveTriggerChanged(triggerID)
	}
}

func (f ObserverFuncs) PendingTextChanged(text string) {
	if f.OnPendingTextChanged != nil {
		f.OnPendingTextChanged(text)
	}
}

// ModifierState tracks which modifier keys are currently held.
//
// One instance is created per input context and handed to whoever needs it;
// there is no package-level instance.
type ModifierState struct {
	mods      Modifiers
	listeners []func(old, new Modifiers)
}

// NewModifierState creates an empty modifier state.
func NewModifierState() *ModifierState {
	return &ModifierState{}
}

// Current returns the held modifiers.
func (s *ModifierState) Current() Modifiers {
	return s.mods
}

// Pressed reports whether mod is held.
func (s *ModifierState) Pressed(mod Modifiers) bool {
	return s.mods.Has(mod)
}

// Set replaces the modifier state and notifies listeners if it changed.
func (s *ModifierState) Set(mods Modifiers) {
	if mods == s.mods {
		return
	}
	old := s.mods
	s.mods = mods
	for _, fn := range s.listeners {
		fn(old, mods)
	}
}

// OnChange registers fn to be called whenever the state changes.
func (s *ModifierState) OnChange(fn func(old, new Modifiers)) {
	if fn != nil {
		s.listeners = append(s.listeners, fn)
	}
}
