// Package overlay implements the input-method overlay core: a state machine
// that turns held keys, prefixes and abbreviations into candidate popups and
// text replacements.
//
// # States
//
//	Idle ──press of eligible key──▶ PendingTimer ──hold expires──▶ OverlayOpen
//	  ▲                                  │                              │
//	  └────────── release / flush ───────┘                              │
//	  └──────────────── Escape / digit / other key / cursor move ───────┘
//
// On press the base character is committed right away, so the field never
// lags the keyboard. When the overlay resolves, the base character is
// replaced with a delete-before-cursor immediately followed by the
// replacement commit. The text-input protocol defers deletes until the next
// commit, so the two are never separated.
//
// # Echoes
//
// Every commit makes the client report new surrounding text. The Controller
// keeps a credit of expected echoes plus a short settle window for clients
// that send more than one, and only treats surrounding-text updates beyond
// both as a cursor move by the user.
//
// # Threading
//
// Nothing here locks. The Controller, its triggers and the Scheduler
// callbacks must all run on one goroutine; see internal/loop.
package overlay
