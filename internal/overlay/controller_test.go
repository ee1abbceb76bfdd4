package overlay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Long-press lifecycle
// =============================================================================

func TestController_TapCommitsOnce(t *testing.T) {
	f := newFixture()

	assert.True(t, f.ctrl.ProcessKeyPress(letter('a')))
	assert.Equal(t, StatePendingTimer, f.ctrl.State())

	f.clock.Advance(200 * time.Millisecond)
	assert.True(t, f.ctrl.ProcessKeyRelease(letter('a')))

	f.clock.Advance(time.Second)
	assert.False(t, f.ctrl.OverlayVisible())
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Equal(t, []portCall{commitCall("a")}, f.port.calls)
	assert.False(t, f.ctrl.HoldTimerActive())
}

func TestController_HoldOpensOverlay(t *testing.T) {
	f := newFixture()

	f.hold('a')

	require.True(t, f.ctrl.OverlayVisible())
	assert.Equal(t, StateOverlayOpen, f.ctrl.State())
	assert.Equal(t, LongPressID, f.ctrl.ActiveTriggerID())
	assert.Equal(t, "a", f.ctrl.PendingText())
	assert.Equal(t, []string{"á", "à", "â", "ä", "ã", "å", "ā", "ă", "ą"}, f.ctrl.Candidates().Displays())
	assert.Equal(t, LongPressID, f.ctrl.Candidates().TriggerID())
	// Opening never touches the text.
	assert.Equal(t, []portCall{commitCall("a")}, f.port.calls)
}

func TestController_HoldPreservesCase(t *testing.T) {
	f := newFixture()

	f.hold('A')

	require.True(t, f.ctrl.OverlayVisible())
	assert.Equal(t, []string{"Á", "À", "Â", "Ä", "Ã", "Å", "Ā", "Ă", "Ą"}, f.ctrl.Candidates().Displays())
	assert.Equal(t, []portCall{commitCall("A")}, f.port.calls)
}

func TestController_SelectCandidate(t *testing.T) {
	for i, want := range []string{"á", "à", "â", "ä", "ã", "å", "ā", "ă", "ą"} {
		f := newFixture()
		f.hold('a')
		f.port.calls = nil

		assert.True(t, f.ctrl.ProcessKeyPress(digit(i+1)), "digit %d", i+1)
		assert.Equal(t, []portCall{deleteCall(-1, 1), commitCall(want)}, f.port.calls)
		assert.False(t, f.ctrl.OverlayVisible())
		assert.Equal(t, StateIdle, f.ctrl.State())
		assert.Equal(t, 0, f.ctrl.Candidates().Len())
	}
}

func TestController_SelectSwallowsHeldKeyRelease(t *testing.T) {
	f := newFixture()
	f.hold('a')
	f.ctrl.ProcessKeyPress(digit(1))

	assert.True(t, f.ctrl.ProcessKeyRelease(letter('a')), "release of the held key is swallowed")
	assert.False(t, f.ctrl.ProcessKeyRelease(letter('a')), "swallow applies once")
}

func TestController_SelectAfterRelease(t *testing.T) {
	f := newFixture()
	f.hold('a')

	assert.True(t, f.ctrl.ProcessKeyRelease(letter('a')))
	assert.True(t, f.ctrl.OverlayVisible(), "overlay stays open after release")

	f.port.calls = nil
	assert.True(t, f.ctrl.ProcessKeyPress(digit(2)))
	assert.Equal(t, []portCall{deleteCall(-1, 1), commitCall("à")}, f.port.calls)

	assert.False(t, f.ctrl.ProcessKeyRelease(letter('a')), "nothing to swallow")
}

func TestController_EscapeCancels(t *testing.T) {
	f := newFixture()
	f.hold('a')
	f.port.calls = nil
	f.log.reset()

	assert.True(t, f.ctrl.ProcessKeyPress(special(KeyEscape)))

	assert.Empty(t, f.port.calls)
	assert.False(t, f.ctrl.OverlayVisible())
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Equal(t, []string{"closed", "visible:false", "trigger:", "pending:"}, f.log.events)
	assert.True(t, f.ctrl.ProcessKeyRelease(letter('a')))
}

func TestController_DigitBeyondCandidates(t *testing.T) {
	f := newFixture()
	f.hold('n') // ñ ń
	require.Equal(t, 2, f.ctrl.Candidates().Len())
	f.port.calls = nil

	assert.False(t, f.ctrl.ProcessKeyPress(digit(5)))
	assert.False(t, f.ctrl.OverlayVisible())
	assert.Empty(t, f.port.calls)
}

func TestController_PendingKeyPressWhileOpen(t *testing.T) {
	f := newFixture()
	f.hold('a')

	assert.True(t, f.ctrl.ProcessKeyPress(letter('a')))
	assert.True(t, f.ctrl.OverlayVisible())
	assert.Equal(t, []portCall{commitCall("a")}, f.port.calls)
}

func TestController_OtherKeyWhileOpenFallsThrough(t *testing.T) {
	t.Run("ineligible key passes through", func(t *testing.T) {
		f := newFixture()
		f.hold('a')

		assert.False(t, f.ctrl.ProcessKeyPress(letter('x')))
		assert.False(t, f.ctrl.OverlayVisible())
		assert.Equal(t, []portCall{commitCall("a")}, f.port.calls)
	})

	t.Run("eligible key starts a new hold", func(t *testing.T) {
		f := newFixture()
		f.hold('a')

		assert.True(t, f.ctrl.ProcessKeyPress(letter('e')))
		assert.False(t, f.ctrl.OverlayVisible())
		assert.Equal(t, StatePendingTimer, f.ctrl.State())
		assert.Equal(t, "e", f.ctrl.PendingText())
		assert.Equal(t, []portCall{commitCall("a"), commitCall("e")}, f.port.calls)
	})
}

func TestController_RepeatPressSuppressed(t *testing.T) {
	f := newFixture()

	assert.True(t, f.ctrl.ProcessKeyPress(letter('a')))
	assert.True(t, f.ctrl.ProcessKeyPress(letter('a')))
	assert.True(t, f.ctrl.ProcessKeyPress(letter('a')))

	assert.Equal(t, []portCall{commitCall("a")}, f.port.calls)
	assert.True(t, f.ctrl.HoldTimerActive())
}

func TestController_SecondKeyFlushesFirst(t *testing.T) {
	f := newFixture()

	f.ctrl.ProcessKeyPress(letter('a'))
	f.clock.Advance(100 * time.Millisecond)
	assert.True(t, f.ctrl.ProcessKeyPress(letter('e')))

	assert.Equal(t, []portCall{commitCall("a"), commitCall("e")}, f.port.calls)
	assert.Equal(t, "e", f.ctrl.PendingText())
	assert.Equal(t, Key('E'), f.ctrl.PendingKey())

	assert.True(t, f.ctrl.ProcessKeyRelease(letter('a')), "flushed key release is swallowed")
	assert.Equal(t, StatePendingTimer, f.ctrl.State(), "swallow does not disturb the new hold")

	f.clock.Advance(DefaultHoldThreshold)
	require.True(t, f.ctrl.OverlayVisible())
	assert.Equal(t, "é", f.ctrl.Candidates().InsertTextAt(0))
	assert.Equal(t, []portCall{commitCall("a"), commitCall("e")}, f.port.calls)
}

func TestController_ModifiedKeyNotEligible(t *testing.T) {
	f := newFixture()

	ev := letter('a')
	ev.Modifiers = ModControl
	assert.False(t, f.ctrl.ProcessKeyPress(ev))
	assert.Empty(t, f.port.calls)

	ev.Modifiers = ModShift | ModCapsLock
	assert.True(t, f.ctrl.ProcessKeyPress(ev))
}

func TestController_InvalidKeyPassesThrough(t *testing.T) {
	f := newFixture()

	assert.False(t, f.ctrl.ProcessKeyPress(KeyEvent{Text: "a"}))
	assert.False(t, f.ctrl.ProcessKeyRelease(KeyEvent{}))
	assert.Empty(t, f.port.calls)
}

func TestController_TableChangeDuringHold(t *testing.T) {
	f := newFixture()

	f.ctrl.ProcessKeyPress(letter('a'))
	f.long.SetTable(DiacriticTable{'e': {"é"}})
	f.clock.Advance(DefaultHoldThreshold)

	assert.False(t, f.ctrl.OverlayVisible())
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.True(t, f.ctrl.ProcessKeyRelease(letter('a')), "held key release is swallowed")
}

// =============================================================================
// Echo suppression
// =============================================================================

func TestController_EchoCreditAndSettle(t *testing.T) {
	f := newFixture()

	f.ctrl.ProcessKeyPress(letter('a'))
	assert.Equal(t, uint(1), f.ctrl.EchoCredit())
	assert.True(t, f.ctrl.SettleArmed())

	// One echo per credit, then extra echoes inside the settle window.
	for i := 0; i < 3; i++ {
		f.ctrl.HandleSurroundingTextChanged()
		assert.True(t, f.ctrl.HoldTimerActive(), "echo %d must not cancel", i)
	}
	assert.Equal(t, uint(0), f.ctrl.EchoCredit())

	f.clock.Advance(DefaultSettleDelay)
	assert.False(t, f.ctrl.SettleArmed())
	assert.True(t, f.ctrl.HoldTimerActive())

	f.ctrl.HandleSurroundingTextChanged()
	assert.False(t, f.ctrl.HoldTimerActive())
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.True(t, f.ctrl.ProcessKeyRelease(letter('a')))
}

func TestController_EchoCreditOutlivesSettle(t *testing.T) {
	f := newFixture()

	f.ctrl.ProcessKeyPress(letter('a'))
	f.clock.Advance(2 * DefaultSettleDelay)
	require.False(t, f.ctrl.SettleArmed())

	// A slow echo is still covered by its credit.
	f.ctrl.HandleSurroundingTextChanged()
	assert.True(t, f.ctrl.HoldTimerActive())

	f.ctrl.HandleSurroundingTextChanged()
	assert.False(t, f.ctrl.HoldTimerActive())
}

func TestController_ExternalMoveClosesOverlay(t *testing.T) {
	f := newFixture()
	f.hold('a')
	f.ctrl.HandleSurroundingTextChanged()
	require.True(t, f.ctrl.OverlayVisible())
	f.port.calls = nil

	f.ctrl.HandleSurroundingTextChanged()

	assert.False(t, f.ctrl.OverlayVisible())
	assert.Empty(t, f.port.calls)
}

func TestController_ExternalMoveWhileIdle(t *testing.T) {
	f := newFixture()
	f.log.reset()

	f.ctrl.HandleSurroundingTextChanged()

	assert.Empty(t, f.log.events)
	assert.Equal(t, StateIdle, f.ctrl.State())
}

func TestController_EveryCommitAddsCredit(t *testing.T) {
	f := newFixture()
	f.hold('a')
	f.ctrl.ProcessKeyPress(digit(1))

	assert.Equal(t, uint(2), f.ctrl.EchoCredit())
	assert.True(t, f.ctrl.SettleArmed())
}

// =============================================================================
// Cancel / reset
// =============================================================================

func TestController_CancelIdempotent(t *testing.T) {
	f := newFixture()
	f.hold('a')

	f.ctrl.Cancel()
	first := append([]string(nil), f.log.events...)
	f.ctrl.Cancel()

	assert.Equal(t, first, f.log.events, "second cancel emits nothing")
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.False(t, f.ctrl.HoldTimerActive())
	assert.False(t, f.ctrl.SettleArmed())
	assert.Equal(t, uint(0), f.ctrl.EchoCredit())
}

func TestController_ResetIdempotent(t *testing.T) {
	f := newFixture()
	f.hold('a')

	f.ctrl.Reset()
	first := append([]string(nil), f.log.events...)
	f.ctrl.Reset()

	assert.Equal(t, first, f.log.events)
	assert.False(t, f.ctrl.ProcessKeyRelease(letter('a')), "reset forgets swallows")
}

func TestController_StaleHoldExpiryIgnored(t *testing.T) {
	port := &recordingPort{}
	clock := &leakyClock{}
	c := NewController(port, clock)
	c.Register(NewLongPressTrigger(DefaultHoldThreshold))

	c.ProcessKeyPress(letter('a'))
	c.ProcessKeyRelease(letter('a'))
	clock.Flush()

	assert.False(t, c.OverlayVisible())
	assert.Equal(t, StateIdle, c.State())
}

// =============================================================================
// Observers
// =============================================================================

func TestController_NotificationOrder(t *testing.T) {
	f := newFixture()
	var countAtVisible int
	f.ctrl.Observe(ObserverFuncs{
		OnOverlayVisibleChanged: func(bool) { countAtVisible = f.ctrl.Candidates().Len() },
	})

	f.ctrl.ProcessKeyPress(letter('a'))
	assert.Equal(t, []string{"pending:a"}, f.log.events)

	f.log.reset()
	f.clock.Advance(DefaultHoldThreshold)
	assert.Equal(t, []string{"visible:true", "trigger:diacritics", "requested:diacritics:a"}, f.log.events)
	assert.Equal(t, 9, countAtVisible, "candidates are populated before visibility changes")

	f.log.reset()
	f.ctrl.ProcessKeyPress(digit(1))
	assert.Equal(t, []string{"closed", "visible:false", "trigger:", "pending:"}, f.log.events)
}

func TestController_OpenOverlayWithoutCandidates(t *testing.T) {
	f := newFixture()
	f.ctrl.ProcessKeyPress(letter('a'))

	f.ctrl.OpenOverlay(LongPressID, "a", nil)

	assert.False(t, f.ctrl.OverlayVisible())
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.False(t, f.ctrl.HoldTimerActive())
}

// =============================================================================
// Public commit entry points
// =============================================================================

func TestController_CommitTextWhilePending(t *testing.T) {
	f := newFixture()
	f.ctrl.ProcessKeyPress(letter('o'))
	f.port.calls = nil

	f.ctrl.CommitText("ø")

	assert.Equal(t, []portCall{deleteCall(-1, 1), commitCall("ø")}, f.port.calls)
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.True(t, f.ctrl.ProcessKeyRelease(letter('o')))
}

func TestController_CommitCandidateOutOfRange(t *testing.T) {
	f := newFixture()
	f.hold('a')
	f.port.calls = nil

	f.ctrl.CommitCandidate(42)
	f.ctrl.CommitCandidate(-1)

	assert.Empty(t, f.port.calls)
	assert.True(t, f.ctrl.OverlayVisible())
}

func TestController_NilPort(t *testing.T) {
	clock := &manualClock{}
	c := NewController(nil, clock)
	c.Register(NewLongPressTrigger(DefaultHoldThreshold))

	assert.NotPanics(t, func() {
		c.ProcessKeyPress(letter('a'))
		clock.Advance(DefaultHoldThreshold)
		c.ProcessKeyPress(digit(1))
	})
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, uint(0), c.EchoCredit())
}

func TestController_DisabledTriggerSkipped(t *testing.T) {
	f := newFixture()
	f.long.SetEnabled(false)

	assert.False(t, f.ctrl.ProcessKeyPress(letter('a')))
	assert.Empty(t, f.port.calls)
}

// =============================================================================
// Prefix query and text expansion
// =============================================================================

func TestController_PrefixQuery(t *testing.T) {
	f := newFixture()
	emoji := NewPrefixQueryTrigger()
	emoji.SetEnabled(true)
	emoji.SetSource(CandidateSourceFunc(func(q string) []string {
		if q == "wha" {
			return []string{"🐋", "🐳"}
		}
		return nil
	}))
	f.ctrl.Register(emoji)

	assert.True(t, f.ctrl.ProcessTextCommitted("hi :wha"))
	require.True(t, f.ctrl.OverlayVisible())
	assert.Equal(t, PrefixQueryID, f.ctrl.ActiveTriggerID())
	assert.Equal(t, ":wha", f.ctrl.PendingText())
	assert.Equal(t, "wha", f.ctrl.Candidates().Query())

	assert.True(t, f.ctrl.ProcessKeyPress(digit(2)))
	assert.Equal(t, []portCall{deleteCall(-4, 4), commitCall("🐳")}, f.port.calls)
	assert.False(t, f.ctrl.OverlayVisible())
}

func TestController_ExpansionWithTriggerKey(t *testing.T) {
	f := newFixture()
	exp := NewTextExpansionTrigger()
	exp.SetEnabled(true)
	exp.Add("brb", "be right back")
	f.ctrl.Register(exp)

	assert.False(t, f.ctrl.ProcessTextCommitted("ok brb"))
	assert.Empty(t, f.port.calls)

	assert.True(t, f.ctrl.ProcessKeyPress(special(KeyTab)))
	assert.Equal(t, []portCall{deleteCall(-3, 3), commitCall("be right back")}, f.port.calls)
	assert.Equal(t, StateIdle, f.ctrl.State())
}

func TestController_ExpansionTriggerKeyReleaseSwallowed(t *testing.T) {
	f := newFixture()
	exp := NewTextExpansionTrigger()
	exp.SetEnabled(true)
	exp.Add("brb", "be right back")
	f.ctrl.Register(exp)

	f.ctrl.ProcessTextCommitted("brb")
	require.True(t, f.ctrl.ProcessKeyPress(special(KeyTab)))

	assert.True(t, f.ctrl.ProcessKeyRelease(special(KeyTab)), "the press never reached the client")
	assert.False(t, f.ctrl.ProcessKeyRelease(special(KeyTab)), "only one release is swallowed")
}

func TestController_ExpansionWhilePendingSwallowsHeldKey(t *testing.T) {
	f := newFixture()
	exp := NewTextExpansionTrigger()
	exp.SetEnabled(true)
	exp.SetRequiresTriggerKey(false)
	exp.Add("brb", "be right back")
	f.ctrl.Register(exp)

	require.True(t, f.ctrl.ProcessKeyPress(letter('a')))
	require.Equal(t, StatePendingTimer, f.ctrl.State())

	assert.True(t, f.ctrl.ProcessTextCommitted("brb"))
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.False(t, f.ctrl.HoldTimerActive())
	assert.True(t, f.long.ProcessEvent(EventTimerExpired, nil, "a", nil).IsZero(), "long-press trigger was reset")

	assert.True(t, f.ctrl.ProcessKeyRelease(letter('a')))
	assert.Equal(t, []portCall{
		commitCall("a"),
		deleteCall(-3, 3),
		commitCall("be right back"),
	}, f.port.calls)
}

func TestController_ExpansionImmediate(t *testing.T) {
	f := newFixture()
	exp := NewTextExpansionTrigger()
	exp.SetEnabled(true)
	exp.SetRequiresTriggerKey(false)
	exp.Add("ty", "thank you")
	f.ctrl.Register(exp)

	assert.True(t, f.ctrl.ProcessTextCommitted("ty"))
	assert.Equal(t, []portCall{deleteCall(-2, 2), commitCall("thank you")}, f.port.calls)
	assert.Equal(t, uint(1), f.ctrl.EchoCredit())
}

func TestController_ExpansionEmptyReplacementSendsNothing(t *testing.T) {
	f := newFixture()
	exp := NewTextExpansionTrigger()
	exp.SetEnabled(true)
	exp.SetRequiresTriggerKey(false)
	exp.Add("xx", "")
	f.ctrl.Register(exp)

	f.ctrl.ProcessTextCommitted("xx")

	assert.Empty(t, f.port.calls, "a delete is never sent without its commit")
}

func TestController_LongPressDiscardsPendingExpansion(t *testing.T) {
	f := newFixture()
	exp := NewTextExpansionTrigger()
	exp.SetEnabled(true)
	exp.Add("brb", "be right back")
	f.ctrl.Register(exp)

	f.ctrl.ProcessTextCommitted("brb")
	require.Equal(t, "brb", exp.PendingAbbreviation())

	f.ctrl.ProcessKeyPress(letter('a'))
	assert.Empty(t, exp.PendingAbbreviation())
}
