// Package emoji answers prefix queries from a user-supplied YAML index.
//
// The index lists one entry per emoji:
//
//	version: 1
//	emoji:
//	  - emoji: "🐋"
//	    name: whale
//	    aliases: [whale2]
//	    keywords: [ocean, sea]
//
// No index ships with kboverlay; emoji search stays idle until one is
// configured.
package emoji

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"kboverlay/internal/overlay"
)

// MaxResults is the number of candidates a search returns, one per digit key.
const MaxResults = 9

// ErrInvalidIndex is wrapped by every index validation failure.
var ErrInvalidIndex = errors.New("emoji: invalid index")

// Entry is one emoji of the index.
type Entry struct {
	Emoji    string   `yaml:"emoji"`
	Name     string   `yaml:"name"`
	Aliases  []string `yaml:"aliases,omitempty"`
	Keywords []string `yaml:"keywords,omitempty"`
	Category string   `yaml:"category,omitempty"`
}

type indexFile struct {
	Version int     `yaml:"version"`
	Emoji   []Entry `yaml:"emoji"`
}

// Index is a searchable emoji list. It is immutable after Parse.
type Index struct {
	entries []entry
}

type entry struct {
	emoji    string
	names    []string // name first, then aliases, case-folded
	keywords []string
}

var _ overlay.CandidateSource = (*Index)(nil)

// Parse decodes and validates a YAML index.
func Parse(data []byte) (*Index, error) {
	var f indexFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	}
	if f.Version != 0 && f.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidIndex, f.Version)
	}

	fold := cases.Fold()
	var errs []error
	seen := make(map[string]int)
	ix := &Index{entries: make([]entry, 0, len(f.Emoji))}
	for i, e := range f.Emoji {
		if strings.TrimSpace(e.Emoji) == "" {
			errs = append(errs, fmt.Errorf("entry %d: emoji is empty", i))
			continue
		}
		if !validName(e.Name) {
			errs = append(errs, fmt.Errorf("entry %d (%s): invalid name %q", i, e.Emoji, e.Name))
			continue
		}
		if prev, ok := seen[e.Emoji]; ok {
			errs = append(errs, fmt.Errorf("entry %d: %s already listed at entry %d", i, e.Emoji, prev))
			continue
		}
		seen[e.Emoji] = i

		en := entry{emoji: e.Emoji, names: []string{fold.String(e.Name)}}
		for _, a := range e.Aliases {
			if validName(a) {
				en.names = append(en.names, fold.String(a))
			}
		}
		for _, k := range e.Keywords {
			if k = strings.TrimSpace(k); k != "" {
				en.keywords = append(en.keywords, fold.String(k))
			}
		}
		ix.entries = append(ix.entries, en)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIndex, errors.Join(errs...))
	}
	return ix, nil
}

// LoadFile reads and parses the index at path.
func LoadFile(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read emoji index: %w", err)
	}
	ix, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ix, nil
}

func validName(s string) bool {
	return s != "" && strings.IndexFunc(s, unicode.IsSpace) < 0
}

// Len returns the number of entries.
func (ix *Index) Len() int { return len(ix.entries) }

// Search returns up to MaxResults emoji for query, best matches first:
// exact names, then name prefixes, then keyword prefixes, then names
// containing the query. Ties keep index order.
func (ix *Index) Search(query string) []string {
	q := cases.Fold().String(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	const tiers = 4
	var ranked [tiers][]string
	for _, e := range ix.entries {
		if tier, ok := e.rank(q); ok {
			ranked[tier] = append(ranked[tier], e.emoji)
		}
	}

	out := make([]string, 0, MaxResults)
	for _, tier := range ranked {
		for _, em := range tier {
			if len(out) == MaxResults {
				return out
			}
			out = append(out, em)
		}
	}
	return out
}

func (e entry) rank(q string) (int, bool) {
	best := -1
	consider := func(tier int) {
		if best < 0 || tier < best {
			best = tier
		}
	}
	for _, n := range e.names {
		switch {
		case n == q:
			consider(0)
		case strings.HasPrefix(n, q):
			consider(1)
		case strings.Contains(n, q):
			consider(3)
		}
	}
	for _, k := range e.keywords {
		if strings.HasPrefix(k, q) {
			consider(2)
		}
	}
	return best, best >= 0
}
