package overlay

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// PrefixQueryID identifies the prefix-query (emoji) trigger.
const PrefixQueryID = "emoji"

// Defaults for the prefix-query trigger.
const (
	DefaultPrefix         = ":"
	DefaultMinQueryLength = 2
)

// CandidateSource answers prefix queries, e.g. an emoji index.
type CandidateSource interface {
	Search(query string) []string
}

// CandidateSourceFunc adapts a function to CandidateSource.
type CandidateSourceFunc func(query string) []string

func (f CandidateSourceFunc) Search(query string) []string { return f(query) }

// PrefixQueryTrigger opens an overlay for text typed after a prefix
// character, as in ":whale". It stays inactive until a CandidateSource is
// attached, even when enabled in the configuration.
type PrefixQueryTrigger struct {
	enabled  bool
	prefix   string
	minLen   int
	source   CandidateSource
	active   bool
	curQuery string
}

var _ Trigger = (*PrefixQueryTrigger)(nil)

// NewPrefixQueryTrigger creates a disabled trigger with the default prefix.
func NewPrefixQueryTrigger() *PrefixQueryTrigger {
	return &PrefixQueryTrigger{
		prefix: DefaultPrefix,
		minLen: DefaultMinQueryLength,
	}
}

func (t *PrefixQueryTrigger) ID() string          { return PrefixQueryID }
func (t *PrefixQueryTrigger) DisplayName() string { return "Emoji (Prefix Search)" }

// Enabled reports whether the trigger is switched on and has a data source.
func (t *PrefixQueryTrigger) Enabled() bool {
	return t.enabled && t.source != nil
}

// SetEnabled switches the trigger on or off.
func (t *PrefixQueryTrigger) SetEnabled(enabled bool) {
	t.enabled = enabled
	if !enabled {
		t.Reset()
	}
}

// SetSource attaches the candidate source. nil detaches it.
func (t *PrefixQueryTrigger) SetSource(src CandidateSource) {
	t.source = src
}

// Prefix returns the prefix character.
func (t *PrefixQueryTrigger) Prefix() string { return t.prefix }

// SetPrefix sets the prefix. Only the first character of p is used.
func (t *PrefixQueryTrigger) SetPrefix(p string) {
	r, size := utf8.DecodeRuneInString(p)
	if size == 0 || r == utf8.RuneError {
		return
	}
	t.prefix = string(r)
}

// MinQueryLength returns the minimum query length, in characters.
func (t *PrefixQueryTrigger) MinQueryLength() int { return t.minLen }

// SetMinQueryLength sets the minimum query length.
func (t *PrefixQueryTrigger) SetMinQueryLength(n int) {
	if n < 1 {
		n = 1
	}
	t.minLen = n
}

// CurrentQuery returns the query of the last detected prefix.
func (t *PrefixQueryTrigger) CurrentQuery() string { return t.curQuery }

func (t *PrefixQueryTrigger) ProcessEvent(kind EventKind, key *KeyEvent, text string, q Query) Result {
	if kind != EventPreeditChanged && kind != EventTextCommitted {
		return Result{}
	}

	query := t.extractQuery(text)
	switch {
	case query != "" && utf8.RuneCountInString(query) >= t.minLen:
		t.curQuery = query
		t.active = true
		return Result{
			Action:      ActionOpenOverlay,
			Query:       query,
			PendingText: t.prefix + query,
		}
	case t.active && query == "":
		t.active = false
		t.curQuery = ""
		return Result{Action: ActionCloseOverlay}
	}
	return Result{}
}

// extractQuery returns the run of non-space characters that directly follows
// the last prefix in text.
func (t *PrefixQueryTrigger) extractQuery(text string) string {
	pos := strings.LastIndex(text, t.prefix)
	if pos < 0 {
		return ""
	}
	rest := text[pos+len(t.prefix):]
	if end := strings.IndexFunc(rest, unicode.IsSpace); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func (t *PrefixQueryTrigger) Reset() {
	t.active = false
	t.curQuery = ""
}

// Candidates searches the source for query. baseText is the query, not the
// prefixed text.
func (t *PrefixQueryTrigger) Candidates(query string) []string {
	if t.source == nil || query == "" {
		return nil
	}
	return t.source.Search(query)
}
