// Package locale loads diacritic tables from JSON files and layers them over
// the built-in table.
//
// A table file looks like:
//
//	{
//	  "version": 1,
//	  "locale": "pl",
//	  "letters": {"a": ["ą"], "z": ["ż", "ź"]}
//	}
//
// Files are checked against an embedded JSON schema, then every key and
// variant is normalized to NFC. Keys must be a single lowercase letter. In
// merge mode an empty list removes the letter from the result.
package locale

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"

	"kboverlay/internal/overlay"
)

//go:embed diacritics.schema.json
var schemaJSON []byte

const schemaURL = "kboverlay://diacritics.schema.json"

// ErrInvalidTable wraps every content error in a table file.
var ErrInvalidTable = errors.New("locale: invalid diacritics table")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Table is a parsed, normalized table file.
type Table struct {
	Version int                 `json:"version"`
	Locale  string              `json:"locale"`
	Letters map[string][]string `json:"letters"`
}

// Parse validates and normalizes a table document.
func Parse(data []byte) (*Table, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	var raw Table
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	t := &Table{
		Version: raw.Version,
		Locale:  raw.Locale,
		Letters: make(map[string][]string, len(raw.Letters)),
	}

	var errs []error
	for _, key := range sortedKeys(raw.Letters) {
		nk := norm.NFC.String(key)
		r, size := utf8.DecodeRuneInString(nk)
		if size != len(nk) || !unicode.IsLetter(r) || !unicode.IsLower(r) {
			errs = append(errs, fmt.Errorf("%w: letters[%q]: key must be a single lowercase letter", ErrInvalidTable, key))
			continue
		}
		if _, dup := t.Letters[nk]; dup {
			errs = append(errs, fmt.Errorf("%w: letters[%q]: duplicate of %q after normalization", ErrInvalidTable, key, nk))
			continue
		}
		t.Letters[nk] = normalizeVariants(raw.Letters[key])
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

// LoadFile reads and parses a table file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read diacritics table: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Diacritics converts the table to the overlay form.
func (t *Table) Diacritics() overlay.DiacriticTable {
	out := make(overlay.DiacriticTable, len(t.Letters))
	for k, v := range t.Letters {
		r, _ := utf8.DecodeRuneInString(k)
		out[r] = append([]string(nil), v...)
	}
	return out
}

// Apply layers t over base. With merge false t replaces base entirely and
// empty entries are dropped.
func Apply(base overlay.DiacriticTable, t *Table, merge bool) overlay.DiacriticTable {
	if t == nil {
		return base
	}
	if merge {
		return base.Merge(t.Diacritics())
	}
	out := t.Diacritics()
	for r, v := range out {
		if len(v) == 0 {
			delete(out, r)
		}
	}
	return out
}

// Load returns the effective table for a configured path. An empty path
// yields the built-in table.
func Load(path string, merge bool) (overlay.DiacriticTable, *Table, error) {
	base := overlay.DefaultDiacritics()
	if path == "" {
		return base, nil, nil
	}
	t, err := LoadFile(path)
	if err != nil {
		return base, nil, err
	}
	return Apply(base, t, merge), t, nil
}

func normalizeVariants(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		nv := norm.NFC.String(v)
		if _, ok := seen[nv]; ok {
			continue
		}
		seen[nv] = struct{}{}
		out = append(out, nv)
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
