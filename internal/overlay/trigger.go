package overlay

import "time"

// Action is what a trigger asks the controller to do.
type Action int

const (
	// ActionNone means no action is needed.
	ActionNone Action = iota
	// ActionStartTimer starts a hold timer for delayed overlay activation.
	ActionStartTimer
	// ActionOpenOverlay opens the overlay with the trigger's candidates.
	ActionOpenOverlay
	// ActionCloseOverlay closes the overlay without committing.
	ActionCloseOverlay
	// ActionCommitText commits the result text, or the pending text if empty.
	ActionCommitText
	// ActionReplaceText deletes text before the cursor and commits a replacement.
	ActionReplaceText
	// ActionConsumeEvent consumes the event without a visible action.
	ActionConsumeEvent
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionStartTimer:
		return "StartTimer"
	case ActionOpenOverlay:
		return "OpenOverlay"
	case ActionCloseOverlay:
		return "CloseOverlay"
	case ActionCommitText:
		return "CommitText"
	case ActionReplaceText:
		return "ReplaceText"
	case ActionConsumeEvent:
		return "ConsumeEvent"
	default:
		return "Unknown"
	}
}

// Result is returned by a trigger after processing an event.
//
// Action selects which of the optional fields are meaningful.
type Result struct {
	Action Action

	// Consume marks the input event as consumed (not passed through),
	// independently of Action.
	Consume bool

	// Query filters candidates for prefix-style triggers (":whale" -> "whale").
	Query string

	// CommitText is the text to commit for CommitText and ReplaceText.
	CommitText string

	// DeleteBeforeCursor is the number of characters ReplaceText removes.
	DeleteBeforeCursor int

	// TimerDuration is the StartTimer hold duration.
	TimerDuration time.Duration

	// PendingKey is the key that started the timer, for release handling.
	PendingKey Key

	// PendingText is the text committed optimistically for StartTimer, or the
	// text an OpenOverlay selection will replace.
	PendingText string
}

// IsZero reports whether the result neither acts nor consumes.
func (r Result) IsZero() bool {
	return r.Action == ActionNone && !r.Consume
}

// Query is the read-only view of the controller that triggers may inspect.
type Query interface {
	OverlayVisible() bool
	ActiveTriggerID() string
	PendingText() string
	PendingKey() Key
}

// Trigger detects one input pattern (long-press, prefix query, abbreviation)
// and proposes an action for the controller to execute.
//
// Triggers may keep local state but never mutate shared overlay state; that
// belongs to the Controller.
type Trigger interface {
	// ID is a stable identifier used for logging, settings and view selection.
	ID() string

	// DisplayName is a human-readable name for settings UIs.
	DisplayName() string

	// Enabled reports whether the controller should consult this trigger.
	Enabled() bool

	// ProcessEvent inspects one event. key is nil for non-key events; text is
	// the key text, preedit, committed text or pending text depending on kind.
	ProcessEvent(kind EventKind, key *KeyEvent, text string, q Query) Result

	// Reset clears trigger-local state. Called whenever the controller
	// cancels or commits.
	Reset()

	// Candidates returns the options for baseText. An empty slice means there
	// is nothing to show.
	Candidates(baseText string) []string
}
