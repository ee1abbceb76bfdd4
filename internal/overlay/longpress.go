package overlay

import (
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LongPressID identifies the long-press diacritics trigger.
const LongPressID = "diacritics"

// DefaultHoldThreshold is how long a letter must be held before its
// variants are offered.
const DefaultHoldThreshold = 500 * time.Millisecond

// LongPressTrigger offers accented variants of a letter that is held down
// past the hold threshold.
type LongPressTrigger struct {
	enabled      bool
	hold         time.Duration
	table        DiacriticTable
	timerStarted bool
}

var _ Trigger = (*LongPressTrigger)(nil)

// NewLongPressTrigger creates an enabled trigger using the built-in table.
func NewLongPressTrigger(hold time.Duration) *LongPressTrigger {
	if hold <= 0 {
		hold = DefaultHoldThreshold
	}
	return &LongPressTrigger{
		enabled: true,
		hold:    hold,
		table:   DefaultDiacritics(),
	}
}

func (t *LongPressTrigger) ID() string          { return LongPressID }
func (t *LongPressTrigger) DisplayName() string { return "Diacritics" }
func (t *LongPressTrigger) Enabled() bool       { return t.enabled }

// SetEnabled enables or disables the trigger.
func (t *LongPressTrigger) SetEnabled(enabled bool) {
	t.enabled = enabled
	if !enabled {
		t.Reset()
	}
}

// HoldThreshold returns the configured hold duration.
func (t *LongPressTrigger) HoldThreshold() time.Duration { return t.hold }

// SetHoldThreshold changes the hold duration for subsequent presses.
func (t *LongPressTrigger) SetHoldThreshold(d time.Duration) {
	if d > 0 {
		t.hold = d
	}
}

// SetTable replaces the diacritic table. A nil table restores the built-in one.
func (t *LongPressTrigger) SetTable(table DiacriticTable) {
	if table == nil {
		table = DefaultDiacritics()
	}
	t.table = table
}

// Table returns the active diacritic table.
func (t *LongPressTrigger) Table() DiacriticTable { return t.table }

func (t *LongPressTrigger) ProcessEvent(kind EventKind, key *KeyEvent, text string, q Query) Result {
	switch kind {
	case EventKeyPress:
		if key == nil || !t.eligible(*key) {
			return Result{}
		}
		t.timerStarted = true
		return Result{
			Action:        ActionStartTimer,
			Consume:       true,
			PendingText:   key.Text,
			PendingKey:    key.Key,
			TimerDuration: t.hold,
		}

	case EventTimerExpired:
		if !t.timerStarted {
			return Result{}
		}
		t.timerStarted = false
		if len(t.Candidates(text)) == 0 {
			return Result{}
		}
		return Result{Action: ActionOpenOverlay, Consume: true}
	}
	return Result{}
}

func (t *LongPressTrigger) eligible(ev KeyEvent) bool {
	if ev.Key == KeyBackspace || ev.Key == KeyDelete || ev.AutoRepeat {
		return false
	}
	if !ev.Modifiers.ShiftOnly() {
		return false
	}
	r, ok := ev.SingleRune()
	if !ok || !unicode.IsLetter(r) {
		return false
	}
	return len(t.table.Lookup(unicode.ToLower(r))) > 0
}

func (t *LongPressTrigger) Reset() {
	t.timerStarted = false
}

// Candidates returns the variants of baseText's letter, uppercased when the
// letter is uppercase.
func (t *LongPressTrigger) Candidates(baseText string) []string {
	r, ok := KeyEvent{Text: baseText}.SingleRune()
	if !ok {
		return nil
	}
	variants := t.table.Lookup(unicode.ToLower(r))
	if len(variants) == 0 {
		return nil
	}

	out := make([]string, len(variants))
	if !unicode.IsUpper(r) {
		copy(out, variants)
		return out
	}
	upper := cases.Upper(language.Und)
	for i, v := range variants {
		out[i] = upper.String(v)
	}
	return out
}
