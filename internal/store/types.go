// Package store provides SQLite-backed snippet storage for text expansion.
package store

import "time"

// Snippet is one abbreviation and the text it expands to.
type Snippet struct {
	Abbreviation string
	Expansion    string
	Description  string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
