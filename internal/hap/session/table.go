package session

// Table is the server-owned arena of sessions (spec §9: the server owns
// the session array by value; sessions are addressed by ID). Table is not
// safe for concurrent use — per spec §5 all access happens on the single
// dispatch task.
type Table struct {
	sessions map[ID]*Session
	nextID   ID
}

// NewTable creates an empty session table.
func NewTable() *Table {
	return &Table{sessions: make(map[ID]*Session)}
}

// Create allocates a new session for transport and adds it to the table.
func (t *Table) Create(transport Transport) *Session {
	id := t.nextID
	t.nextID++
	s := New(id, transport)
	t.sessions[id] = s
	return s
}

// Get returns the session at id, or nil if none exists.
func (t *Table) Get(id ID) *Session {
	return t.sessions[id]
}

// Remove deletes id from the table (the caller must have already called
// Session.Invalidate).
func (t *Table) Remove(id ID) {
	delete(t.sessions, id)
}

// All returns every live session. Iteration order is unspecified, matching
// spec §5 "Across sessions: no ordering is guaranteed."
func (t *Table) All() []*Session {
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	return len(t.sessions)
}

// InvalidateAll invalidates every session, terminating links, used by
// server stop and by "remove last admin pairing" cleanup (spec §4.C7,
// §4.C14). except, if non-nil, is skipped (the session driving the
// removal itself).
func (t *Table) InvalidateAll(except *Session, disconnect func(ID)) {
	for _, s := range t.sessions {
		if s == except {
			continue
		}
		id := s.ID
		s.Invalidate(true, func() {
			if disconnect != nil {
				disconnect(id)
			}
		})
	}
}
