package overlay

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TextExpansionID identifies the abbreviation expansion trigger.
const TextExpansionID = "textexpansion"

// TextExpansionTrigger replaces a typed abbreviation with its expansion,
// either right away or when the confirmation key is pressed.
type TextExpansionTrigger struct {
	enabled            bool
	expansions         map[string]string
	requiresTriggerKey bool
	triggerKey         Key
	pendingAbbrev      string
}

var _ Trigger = (*TextExpansionTrigger)(nil)

// NewTextExpansionTrigger creates a disabled trigger confirmed by Tab.
func NewTextExpansionTrigger() *TextExpansionTrigger {
	return &TextExpansionTrigger{
		expansions:         make(map[string]string),
		requiresTriggerKey: true,
		triggerKey:         KeyTab,
	}
}

func (t *TextExpansionTrigger) ID() string          { return TextExpansionID }
func (t *TextExpansionTrigger) DisplayName() string { return "Text Expansion" }
func (t *TextExpansionTrigger) Enabled() bool       { return t.enabled }

// SetEnabled switches the trigger on or off.
func (t *TextExpansionTrigger) SetEnabled(enabled bool) {
	t.enabled = enabled
	if !enabled {
		t.Reset()
	}
}

// Add registers or replaces an expansion.
func (t *TextExpansionTrigger) Add(abbrev, expansion string) {
	if abbrev == "" {
		return
	}
	t.expansions[abbrev] = expansion
}

// Remove deletes an expansion.
func (t *TextExpansionTrigger) Remove(abbrev string) {
	delete(t.expansions, abbrev)
	if t.pendingAbbrev == abbrev {
		t.pendingAbbrev = ""
	}
}

// SetExpansions replaces every expansion.
func (t *TextExpansionTrigger) SetExpansions(m map[string]string) {
	t.expansions = make(map[string]string, len(m))
	for abbrev, expansion := range m {
		t.Add(abbrev, expansion)
	}
	t.pendingAbbrev = ""
}

// Len returns the number of expansions.
func (t *TextExpansionTrigger) Len() int { return len(t.expansions) }

// RequiresTriggerKey reports whether expansions wait for the confirmation key.
func (t *TextExpansionTrigger) RequiresTriggerKey() bool { return t.requiresTriggerKey }

// SetRequiresTriggerKey selects confirmed or immediate expansion.
func (t *TextExpansionTrigger) SetRequiresTriggerKey(v bool) {
	t.requiresTriggerKey = v
	if !v {
		t.pendingAbbrev = ""
	}
}

// TriggerKey returns the confirmation key.
func (t *TextExpansionTrigger) TriggerKey() Key { return t.triggerKey }

// SetTriggerKey sets the confirmation key.
func (t *TextExpansionTrigger) SetTriggerKey(k Key) {
	if k != KeyNone {
		t.triggerKey = k
	}
}

// PendingAbbreviation returns the match waiting for the confirmation key.
func (t *TextExpansionTrigger) PendingAbbreviation() string { return t.pendingAbbrev }

func (t *TextExpansionTrigger) ProcessEvent(kind EventKind, key *KeyEvent, text string, q Query) Result {
	switch kind {
	case EventTextCommitted:
		abbrev := t.match(text)
		if abbrev == "" {
			return Result{}
		}
		if t.requiresTriggerKey {
			t.pendingAbbrev = abbrev
			return Result{}
		}
		return t.replace(abbrev, false)

	case EventKeyPress:
		if t.pendingAbbrev == "" {
			return Result{}
		}
		abbrev := t.pendingAbbrev
		t.pendingAbbrev = ""
		if key != nil && key.Key == t.triggerKey {
			return t.replace(abbrev, true)
		}
	}
	return Result{}
}

func (t *TextExpansionTrigger) replace(abbrev string, consume bool) Result {
	return Result{
		Action:             ActionReplaceText,
		Consume:            consume,
		DeleteBeforeCursor: utf8.RuneCountInString(abbrev),
		CommitText:         t.expansions[abbrev],
	}
}

// match returns the longest abbreviation that ends text and starts at a word
// boundary.
func (t *TextExpansionTrigger) match(text string) string {
	abbrevs := make([]string, 0, len(t.expansions))
	for abbrev := range t.expansions {
		abbrevs = append(abbrevs, abbrev)
	}
	sort.Slice(abbrevs, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(abbrevs[i]), utf8.RuneCountInString(abbrevs[j])
		if li != lj {
			return li > lj
		}
		return abbrevs[i] < abbrevs[j]
	})

	for _, abbrev := range abbrevs {
		if !strings.HasSuffix(text, abbrev) {
			continue
		}
		head := text[:len(text)-len(abbrev)]
		if head == "" {
			return abbrev
		}
		if r, _ := utf8.DecodeLastRuneInString(head); unicode.IsSpace(r) {
			return abbrev
		}
	}
	return ""
}

func (t *TextExpansionTrigger) Reset() {
	t.pendingAbbrev = ""
}

// Candidates is always empty; expansions replace text directly.
func (t *TextExpansionTrigger) Candidates(string) []string {
	return nil
}
