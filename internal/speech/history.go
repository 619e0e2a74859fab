package speech

import "time"

// HistorySize bounds the transcript history.
const HistorySize = 50

// Entry is one final transcript kept in the history.
type Entry struct {
	Transcript string    `json:"transcript"`
	Language   string    `json:"language"`
	At         time.Time `json:"at"`
}

// History is a fixed-size ring of the most recent final transcripts.
type History struct {
	buf  []Entry
	next int
	full bool
}

// NewHistory creates a ring holding size entries.
func NewHistory(size int) *History {
	if size <= 0 {
		size = HistorySize
	}
	return &History{buf: make([]Entry, size)}
}

// Add appends e, evicting the oldest entry when full.
func (h *History) Add(e Entry) {
	h.buf[h.next] = e
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Entries returns the stored entries oldest first.
func (h *History) Entries() []Entry {
	if !h.full {
		return append([]Entry(nil), h.buf[:h.next]...)
	}
	out := make([]Entry, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

// Clear empties the ring.
func (h *History) Clear() {
	clear(h.buf)
	h.next, h.full = 0, false
}
