// Package ime connects the overlay controller to IBus.
//
// IBus asks the Factory for one Engine per input context. Each Engine owns
// an overlay.Controller and translates between the two sides:
//
//	ProcessKeyEvent(keyval, keycode, state)
//	        |
//	        v
//	TranslateKey -> Controller.ProcessKeyPress / ProcessKeyRelease
//	        |
//	        v
//	TextCommitPort -> CommitText / DeleteSurroundingText signals
//
// Candidates are shown as an IBus lookup table labelled 1-9. The query of a
// prefix search is shown as auxiliary text.
//
// IBus does not tell an engine what the user typed when a key passes
// through, so the engine keeps the text typed since the last word boundary
// itself and offers it to the text triggers shortly after each key. The
// short delay lets the client apply the passed-through key before an
// expansion deletes it.
//
// D-Bus calls arrive on godbus goroutines. Every method hands its work to an
// Executor (the event loop) and waits, so the controller is only touched
// from one goroutine.
package ime
