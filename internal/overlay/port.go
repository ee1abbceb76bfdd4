package overlay

// TextCommitPort is the text-input protocol surface the controller writes to.
type TextCommitPort interface {
	// Commit inserts text at the cursor. The far end answers every commit
	// with at least one asynchronous surrounding-text update.
	Commit(text string)

	// DeleteSurroundingText removes length characters starting offset
	// characters from the cursor. The protocol defers it until the next
	// Commit, at which point both apply together at the then-current cursor.
	// It must therefore always be followed directly by the replacement
	// Commit.
	DeleteSurroundingText(offset int, length uint)
}
