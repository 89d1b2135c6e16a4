package room

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/events"
)

// Role tags a member as the session presenter or a viewer
type Role string

const (
	RolePresenter Role = "presenter"
	RoleViewer    Role = "viewer"
)

// Member is one connected client
type Member interface {
	ID() string
	// Send enqueues an encoded event without blocking. It reports false when
	// the member cannot accept more data.
	Send(data []byte) bool
	Close()
}

type membership struct {
	code string
	role Role
}

// Registry maps session codes to the members currently in them
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]map[Member]Role
	members map[Member]membership
}

// Stats is a point-in-time view of the registry
type Stats struct {
	TotalMembers int            `json:"total_members"`
	ActiveRooms  int            `json:"active_rooms"`
	Rooms        map[string]int `json:"rooms"`
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]map[Member]Role),
		members: make(map[Member]membership),
	}
}

// Join adds the member to the room and returns the room size. A member already in
// another room is moved.
func (r *Registry) Join(code string, m Member, role Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.members[m]; ok {
		r.removeLocked(m, prev.code)
	}

	if r.rooms[code] == nil {
		r.rooms[code] = make(map[Member]Role)
		gaugeRooms.Inc()
	}
	r.rooms[code][m] = role
	r.members[m] = membership{code: code, role: role}

	log.Debug().
		Str("session_code", code).
		Str("connection_id", m.ID()).
		Str("role", string(role)).
		Int("members", len(r.rooms[code])).
		Msg("member joined room")

	return len(r.rooms[code])
}

// Leave removes the member from its room. It reports the room it left, if any.
func (r *Registry) Leave(m Member) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.members[m]
	if !ok {
		return "", false
	}
	r.removeLocked(m, prev.code)
	return prev.code, true
}

func (r *Registry) removeLocked(m Member, code string) {
	delete(r.members, m)
	members, ok := r.rooms[code]
	if !ok {
		return
	}
	delete(members, m)
	if len(members) == 0 {
		delete(r.rooms, code)
		gaugeRooms.Dec()
	}

	log.Debug().
		Str("session_code", code).
		Str("connection_id", m.ID()).
		Int("members", len(members)).
		Msg("member left room")
}

// Membership returns the room and role of a member
func (r *Registry) Membership(m Member) (string, Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ms, ok := r.members[m]
	return ms.code, ms.role, ok
}

// RoomOf returns the room a member is in
func (r *Registry) RoomOf(m Member) (string, bool) {
	code, _, ok := r.Membership(m)
	return code, ok
}

// Members returns the number of members in a room
func (r *Registry) Members(code string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[code])
}

// Broadcast delivers the event to every member of the room. Members that cannot
// keep up are removed and closed; the others are unaffected.
func (r *Registry) Broadcast(code string, event *events.Event) int {
	r.mu.RLock()
	targets := make([]Member, 0, len(r.rooms[code]))
	for m := range r.rooms[code] {
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to marshal event for broadcast")
		return 0
	}

	delivered := 0
	for _, m := range targets {
		if m.Send(data) {
			delivered++
			continue
		}
		r.drop(m, code)
	}

	metricBroadcasts.WithLabelValues(string(event.Type)).Inc()
	log.Debug().
		Str("event_type", string(event.Type)).
		Str("session_code", code).
		Int("connections", delivered).
		Msg("event broadcasted")

	return delivered
}

// Unicast delivers the event to one member. A failed send drops the member
// only while it still belongs to a room; an unregistered member is left to
// whoever owns it.
func (r *Registry) Unicast(m Member, event *events.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to marshal event for unicast")
		return false
	}
	if m.Send(data) {
		return true
	}
	if code, ok := r.RoomOf(m); ok {
		r.drop(m, code)
	}
	return false
}

func (r *Registry) drop(m Member, code string) {
	metricDroppedSends.Inc()
	log.Warn().
		Str("connection_id", m.ID()).
		Str("session_code", code).
		Msg("connection send buffer full, closing connection")
	r.Leave(m)
	m.Close()
}

// Stats returns member counts per room
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		ActiveRooms: len(r.rooms),
		Rooms:       make(map[string]int, len(r.rooms)),
	}
	for code, members := range r.rooms {
		stats.Rooms[code] = len(members)
		stats.TotalMembers += len(members)
	}
	return stats
}
