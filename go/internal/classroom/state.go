package classroom

import (
	"sort"
	"time"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/captions"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/timer"
)

// SessionState is the full live state of one session
type SessionState struct {
	SessionCode  string          `json:"sessionCode"`
	Timer        timer.Snapshot  `json:"timer"`
	Objective    string          `json:"objective"`
	Members      int             `json:"members"`
	Captions     captions.Status `json:"captions"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
	LastActivity *time.Time      `json:"lastActivity,omitempty"`
}

// SessionSummary describes a tracked session
type SessionSummary struct {
	SessionCode  string    `json:"sessionCode"`
	Members      int       `json:"members"`
	TimerRunning bool      `json:"timerRunning"`
	LastActivity time.Time `json:"lastActivity"`
}

// State returns the live state of a session. Unknown sessions report defaults.
func (c *Coordinator) State(code string) SessionState {
	state := SessionState{
		SessionCode: code,
		Timer:       c.timers.Snapshot(code),
		Objective:   c.objectives.Snapshot(code),
		Members:     c.rooms.Members(code),
		Captions:    c.captions.Status(code),
	}

	c.mu.Lock()
	if s, ok := c.sessions[code]; ok {
		created, last := s.createdAt, s.lastActivity
		state.CreatedAt = &created
		state.LastActivity = &last
	}
	c.mu.Unlock()

	return state
}

// Sessions lists tracked sessions ordered by code
func (c *Coordinator) Sessions() []SessionSummary {
	c.mu.Lock()
	summaries := make([]SessionSummary, 0, len(c.sessions))
	for code, s := range c.sessions {
		summaries = append(summaries, SessionSummary{SessionCode: code, LastActivity: s.lastActivity})
	}
	c.mu.Unlock()

	for i := range summaries {
		summaries[i].Members = c.rooms.Members(summaries[i].SessionCode)
		summaries[i].TimerRunning = c.timers.Running(summaries[i].SessionCode)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].SessionCode < summaries[j].SessionCode
	})
	return summaries
}
