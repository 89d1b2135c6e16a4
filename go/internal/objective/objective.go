package objective

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/events"
)

// Broadcaster fans an event out to every member of a session
type Broadcaster interface {
	Broadcast(code string, event *events.Event)
}

// Board holds the current lesson objective of every session
type Board struct {
	out Broadcaster

	mu         sync.Mutex
	objectives map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	text string
}

// NewBoard creates an empty objective board
func NewBoard(out Broadcaster) *Board {
	return &Board{
		out:        out,
		objectives: make(map[string]*entry),
	}
}

// Set stores the text verbatim and broadcasts it to the session
func (b *Board) Set(code, text string) {
	b.mu.Lock()
	e, ok := b.objectives[code]
	if !ok {
		e = &entry{}
		b.objectives[code] = e
	}
	b.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
	b.out.Broadcast(code, events.ObjectiveUpdate(code, text))

	log.Info().Str("session_code", code).Int("length", len(text)).Msg("objective updated")
}

// Snapshot returns the current objective, or "" when none was set
func (b *Board) Snapshot(code string) string {
	b.mu.Lock()
	e, ok := b.objectives[code]
	b.mu.Unlock()
	if !ok {
		return ""
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// Resync calls fn with the current objective while no update for the session
// can be broadcast
func (b *Board) Resync(code string, fn func(text string)) {
	b.mu.Lock()
	e, ok := b.objectives[code]
	if !ok {
		defer b.mu.Unlock()
		fn("")
		return
	}
	e.mu.Lock()
	b.mu.Unlock()
	defer e.mu.Unlock()
	fn(e.text)
}

// Remove forgets the session objective
func (b *Board) Remove(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objectives, code)
}
