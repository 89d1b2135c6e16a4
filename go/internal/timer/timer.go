package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/events"
)

// Broadcaster fans an event out to every member of a session
type Broadcaster interface {
	Broadcast(code string, event *events.Event)
}

// Snapshot is the live view of a session countdown
type Snapshot struct {
	SecondsRemaining int  `json:"secondsRemaining"`
	Running          bool `json:"running"`
}

// Config holds countdown settings
type Config struct {
	TickInterval time.Duration
}

// DefaultConfig returns a one second tick
func DefaultConfig() Config {
	return Config{TickInterval: time.Second}
}

// Manager owns one authoritative countdown per session
type Manager struct {
	clock  clockwork.Clock
	config Config
	out    Broadcaster

	mu     sync.Mutex
	timers map[string]*countdown
}

type countdown struct {
	mu        sync.Mutex
	remaining int
	running   bool
	lastSync  time.Time
	// gen changes whenever the running loop is superseded; a loop only
	// mutates state while its generation is current.
	gen  uint64
	stop chan struct{}
}

// NewManager creates a countdown manager
func NewManager(clock clockwork.Clock, config Config, out Broadcaster) *Manager {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	return &Manager{
		clock:  clock,
		config: config,
		out:    out,
		timers: make(map[string]*countdown),
	}
}

func (m *Manager) get(code string) *countdown {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.timers[code]
	if !ok {
		c = &countdown{lastSync: m.clock.Now()}
		m.timers[code] = c
	}
	return c
}

func (m *Manager) lookup(code string) (*countdown, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.timers[code]
	return c, ok
}

// Start replaces any running countdown with one starting at requested seconds
func (m *Manager) Start(code string, requested int) Snapshot {
	c := m.get(code)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.lastSync = m.clock.Now()

	if requested <= 0 {
		c.remaining = 0
		c.running = false
		m.out.Broadcast(code, events.TimerUpdate(code, 0, false))
		log.Debug().Str("session_code", code).Int("requested", requested).Msg("timer start with no time, stopped at zero")
		return Snapshot{}
	}

	c.remaining = requested
	c.running = true
	m.out.Broadcast(code, events.TimerUpdate(code, requested, true))

	c.gen++
	stop := make(chan struct{})
	c.stop = stop
	ticker := m.clock.NewTicker(m.config.TickInterval)
	gaugeLoops.Inc()
	go m.run(code, c, c.gen, ticker, stop)

	log.Info().Str("session_code", code).Int("seconds", requested).Msg("timer started")
	return Snapshot{SecondsRemaining: requested, Running: true}
}

// Stop halts the countdown at the server-computed remaining time. The client
// reported value is only used for diagnostics.
func (m *Manager) Stop(code string, reported *int) Snapshot {
	c := m.get(code)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := m.clock.Now()
	remaining := c.liveRemainingLocked(now)
	c.cancelLocked()
	c.remaining = remaining
	c.running = false
	c.lastSync = now

	if reported != nil && *reported != remaining {
		log.Debug().
			Str("session_code", code).
			Int("reported", *reported).
			Int("remaining", remaining).
			Msg("client reported time differs from server time")
	}

	m.out.Broadcast(code, events.TimerUpdate(code, remaining, false))
	log.Info().Str("session_code", code).Int("remaining", remaining).Msg("timer stopped")
	return Snapshot{SecondsRemaining: remaining}
}

// Reset cancels the countdown and zeroes it
func (m *Manager) Reset(code string) {
	c := m.get(code)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.remaining = 0
	c.running = false
	c.lastSync = m.clock.Now()

	m.out.Broadcast(code, events.TimerReset(code))
	log.Info().Str("session_code", code).Msg("timer reset")
}

// Snapshot returns the live countdown state without mutating it
func (m *Manager) Snapshot(code string) Snapshot {
	c, ok := m.lookup(code)
	if !ok {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		SecondsRemaining: c.liveRemainingLocked(m.clock.Now()),
		Running:          c.running,
	}
}

// Resync calls fn with the current snapshot while holding the session lock, so
// no update for the session can be broadcast until fn returns.
func (m *Manager) Resync(code string, fn func(Snapshot)) {
	m.mu.Lock()
	c, ok := m.timers[code]
	if !ok {
		defer m.mu.Unlock()
		fn(Snapshot{})
		return
	}
	c.mu.Lock()
	m.mu.Unlock()
	defer c.mu.Unlock()

	fn(Snapshot{
		SecondsRemaining: c.liveRemainingLocked(m.clock.Now()),
		Running:          c.running,
	})
}

// Running reports whether a countdown loop is active for the session
func (m *Manager) Running(code string) bool {
	return m.Snapshot(code).Running
}

// Remove cancels the countdown and forgets the session
func (m *Manager) Remove(code string) {
	m.mu.Lock()
	c, ok := m.timers[code]
	delete(m.timers, code)
	m.mu.Unlock()

	if !ok {
		return
	}
	c.mu.Lock()
	c.cancelLocked()
	c.running = false
	c.mu.Unlock()
}

// Sessions returns the codes with countdown state
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make([]string, 0, len(m.timers))
	for code := range m.timers {
		codes = append(codes, code)
	}
	return codes
}

func (m *Manager) run(code string, c *countdown, gen uint64, ticker clockwork.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if done := m.tick(code, c, gen); done {
				return
			}
		}
	}
}

// tick applies one decrement. It reports true when the loop should exit.
func (m *Manager) tick(code string, c *countdown, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || !c.running {
		metricStaleTicks.Inc()
		return true
	}

	c.remaining--
	c.lastSync = m.clock.Now()

	if c.remaining <= 0 {
		c.remaining = 0
		c.running = false
		c.stop = nil
		gaugeLoops.Dec()
		m.out.Broadcast(code, events.TimerUpdate(code, 0, false))
		log.Info().Str("session_code", code).Msg("timer finished")
		return true
	}

	m.out.Broadcast(code, events.TimerUpdate(code, c.remaining, true).WithTransient())
	return false
}

func (c *countdown) cancelLocked() {
	c.gen++
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
		gaugeLoops.Dec()
	}
}

func (c *countdown) liveRemainingLocked(now time.Time) int {
	if !c.running {
		return c.remaining
	}
	elapsed := int(now.Sub(c.lastSync) / time.Second)
	if remaining := c.remaining - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}
