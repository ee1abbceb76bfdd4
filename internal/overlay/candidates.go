package overlay

// Candidate is one selectable option shown in an overlay.
type Candidate struct {
	// Display is the text shown in the popup ("á", "🐋").
	Display string
	// InsertText is committed on selection. Display is used when empty.
	InsertText string
	// Description is optional ("whale").
	Description string
	// Category groups candidates ("Animals").
	Category string
	// Keywords are search terms for filtering.
	Keywords []string
}

// Text returns the text to commit when the candidate is selected.
func (c Candidate) Text() string {
	if c.InsertText == "" {
		return c.Display
	}
	return c.InsertText
}

// Candidates is the ordered candidate collection for the current overlay.
// Index is the only addressing mechanism.
type Candidates struct {
	items     []Candidate
	query     string
	triggerID string
	listeners []func()
}

// NewCandidates creates an empty collection.
func NewCandidates() *Candidates {
	return &Candidates{}
}

// Subscribe registers fn to be called after every change to the items,
// query or trigger ID.
func (c *Candidates) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	c.listeners = append(c.listeners, fn)
}

func (c *Candidates) changed() {
	for _, fn := range c.listeners {
		fn()
	}
}

// Len returns the number of candidates.
func (c *Candidates) Len() int {
	return len(c.items)
}

// At returns the candidate at index.
func (c *Candidates) At(index int) (Candidate, bool) {
	if index < 0 || index >= len(c.items) {
		return Candidate{}, false
	}
	return c.items[index], true
}

// InsertTextAt returns the text to insert for index, or "" when out of range.
func (c *Candidates) InsertTextAt(index int) string {
	cand, ok := c.At(index)
	if !ok {
		return ""
	}
	return cand.Text()
}

// Displays returns the display strings in order.
func (c *Candidates) Displays() []string {
	out := make([]string, len(c.items))
	for i, item := range c.items {
		out[i] = item.Display
	}
	return out
}

// Items returns a copy of the candidates.
func (c *Candidates) Items() []Candidate {
	out := make([]Candidate, len(c.items))
	copy(out, c.items)
	return out
}

// SetStrings replaces the collection with plain candidates whose display and
// insert text are the same string.
func (c *Candidates) SetStrings(texts []string) {
	items := make([]Candidate, 0, len(texts))
	for _, text := range texts {
		items = append(items, Candidate{Display: text, InsertText: text})
	}
	c.items = items
	c.changed()
}

// SetItems replaces the collection.
func (c *Candidates) SetItems(items []Candidate) {
	c.items = append([]Candidate(nil), items...)
	c.changed()
}

// Clear removes all candidates. Listeners are only notified if something
// was removed.
func (c *Candidates) Clear() {
	if len(c.items) == 0 && c.query == "" {
		return
	}
	c.items = nil
	c.query = ""
	c.changed()
}

// Query returns the filter query, if any.
func (c *Candidates) Query() string {
	return c.query
}

// SetQuery sets the filter query.
func (c *Candidates) SetQuery(q string) {
	if c.query == q {
		return
	}
	c.query = q
	c.changed()
}

// TriggerID returns the trigger that populated the collection.
func (c *Candidates) TriggerID() string {
	return c.triggerID
}

// SetTriggerID records the trigger that populated the collection.
func (c *Candidates) SetTriggerID(id string) {
	if c.triggerID == id {
		return
	}
	c.triggerID = id
	c.changed()
}
