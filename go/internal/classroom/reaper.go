package classroom

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Run evicts idle sessions until ctx is cancelled
func (c *Coordinator) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.config.ReapInterval)
	defer ticker.Stop()

	log.Info().
		Dur("idle_ttl", c.config.IdleTTL).
		Dur("interval", c.config.ReapInterval).
		Msg("session reaper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session reaper stopped")
			return
		case <-ticker.Chan():
			c.reapIdle()
		}
	}
}

// reapIdle drops state for sessions with no members, no running timer, no
// caption stream and no activity within the idle TTL. Timer and objective
// state is removed under c.mu, which orders it before any later touch.
func (c *Coordinator) reapIdle() int {
	c.mu.Lock()
	now := c.clock.Now()
	var evicted []string
	for code, s := range c.sessions {
		if now.Sub(s.lastActivity) < c.config.IdleTTL {
			continue
		}
		if c.rooms.Members(code) > 0 || c.timers.Running(code) || c.captions.Status(code).Streaming {
			continue
		}
		delete(c.sessions, code)
		c.timers.Remove(code)
		c.objectives.Remove(code)
		evicted = append(evicted, code)
	}
	c.mu.Unlock()

	for _, code := range evicted {
		gaugeSessions.Dec()
		metricEvictions.Inc()
		log.Info().Str("session_code", code).Msg("evicted idle session")
	}
	return len(evicted)
}
