// Package state holds in-memory per-session state. History lives only
// for the session; it is cleared by explicit command and never persisted
// automatically (the durable audit trail is the ledger's job).
package state

import (
	"sync"
	"time"
)

// EntryKind distinguishes a single automation run from a chain.
type EntryKind string

const (
	KindSingle    EntryKind = "single"
	KindMultiStep EntryKind = "multi_step"
)

// Entry is one routed request in the session.
type Entry struct {
	Input      string
	Kind       EntryKind
	Automation string   // single runs
	Steps      []string // chain runs, automation names in order
	Result     string
	Status     string
	Timestamp  time.Time
}

// History is a mutex-guarded ordered session log. Safe for concurrent
// appenders.
type History struct {
	mu      sync.Mutex
	entries []Entry
}

func NewHistory() *History {
	return &History{}
}

// Append records one entry, stamping it if the caller did not.
func (h *History) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

// Entries returns a copy of the log in append order.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len reports the number of recorded entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Clear drops all entries.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
