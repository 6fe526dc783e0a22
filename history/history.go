// Package history keeps the transcripts of the current run in memory.
// Nothing is persisted; the ring exists so the TUI can show recent
// results and copy them back to the clipboard.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is how many transcripts the ring retains.
const DefaultCapacity = 20

// Entry is one finished transcription.
type Entry struct {
	ID     uuid.UUID
	Time   time.Time
	Text   string
	AudioS float64
	Words  int
}

// Ring holds the most recent entries, evicting the oldest once full.
// Safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{cap: capacity}
}

// Add records a transcript and returns the stored entry.
func (r *Ring) Add(text string, audioSeconds float64) Entry {
	e := Entry{
		ID:     uuid.New(),
		Time:   time.Now(),
		Text:   text,
		AudioS: audioSeconds,
		Words:  len(strings.Fields(text)),
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
	r.mu.Unlock()
	return e
}

// Latest returns the newest entry, if any.
func (r *Ring) Latest() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// Entries returns a copy, newest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[len(r.entries)-1-i] = e
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Ring) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}
