package classroom

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/activity"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/captions"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/events"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/objective"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/room"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/timer"
)

// Authorizer decides the role a member holds in a session
type Authorizer interface {
	RoleFor(m room.Member, code string) room.Role
}

// CodeChecker reports whether a session code has been allocated
type CodeChecker interface {
	Exists(ctx context.Context, code string) (bool, error)
}

// Config holds coordinator settings
type Config struct {
	IdleTTL          time.Duration
	ReapInterval     time.Duration
	RequireKnownCode bool
	PublishTimeout   time.Duration
	Timer            timer.Config
	Captions         captions.Config
}

// DefaultConfig returns the default coordinator configuration
func DefaultConfig() Config {
	return Config{
		IdleTTL:        2 * time.Hour,
		ReapInterval:   5 * time.Minute,
		PublishTimeout: 2 * time.Second,
		Timer:          timer.DefaultConfig(),
		Captions:       captions.DefaultConfig(),
	}
}

// Deps are the collaborators of the coordinator. Any of them may be nil.
type Deps struct {
	Clock      clockwork.Clock
	Recognizer captions.Recognizer
	Translator captions.Translator
	Publisher  activity.Publisher
	Authorizer Authorizer
	Codes      CodeChecker
}

// Coordinator admits members to sessions, resyncs them and routes their commands
// to the per-session state machines.
type Coordinator struct {
	rooms      *room.Registry
	timers     *timer.Manager
	objectives *objective.Board
	captions   *captions.Pipeline

	publisher  activity.Publisher
	authorizer Authorizer
	codes      CodeChecker
	clock      clockwork.Clock
	config     Config

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	createdAt    time.Time
	lastActivity time.Time
}

// New creates a coordinator
func New(deps Deps, config Config) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultConfig().IdleTTL
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = DefaultConfig().ReapInterval
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultConfig().PublishTimeout
	}

	c := &Coordinator{
		rooms:      room.NewRegistry(),
		publisher:  deps.Publisher,
		authorizer: deps.Authorizer,
		codes:      deps.Codes,
		clock:      deps.Clock,
		config:     config,
		sessions:   make(map[string]*sessionState),
	}
	c.timers = timer.NewManager(deps.Clock, config.Timer, c)
	c.objectives = objective.NewBoard(c)
	c.captions = captions.NewPipeline(deps.Recognizer, deps.Translator, c, config.Captions)
	return c
}

// Broadcast delivers the event to the session and records it as activity
func (c *Coordinator) Broadcast(code string, event *events.Event) {
	c.rooms.Broadcast(code, event)
	c.record(code, event)
}

// Unicast delivers the event to one member
func (c *Coordinator) Unicast(m room.Member, event *events.Event) bool {
	return c.rooms.Unicast(m, event)
}

func (c *Coordinator) record(code string, event *events.Event) {
	if c.publisher == nil || event.Transient {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
	defer cancel()
	if err := c.publisher.Publish(ctx, activity.FromRoomEvent(code, event)); err != nil {
		log.Warn().Err(err).
			Str("session_code", code).
			Str("event_type", string(event.Type)).
			Msg("failed to record activity")
	}
}

// Join admits the member to the session named by the raw code and resyncs it.
// An invalid code is answered with sessionError and the member is closed.
func (c *Coordinator) Join(ctx context.Context, m room.Member, raw []byte) error {
	code, err := ParseSessionCode(raw)
	if err != nil {
		c.reject(m, "", "Invalid session code.", err)
		return err
	}

	if c.config.RequireKnownCode && c.codes != nil {
		ok, err := c.codes.Exists(ctx, code)
		if err != nil {
			log.Error().Err(err).Str("session_code", code).Msg("failed to check session code")
			c.reject(m, code, "Unable to verify session code.", err)
			return fmt.Errorf("failed to check session code: %w", err)
		}
		if !ok {
			c.reject(m, code, "Session code not found.", ErrUnknownSession)
			return ErrUnknownSession
		}
	}

	if prev, ok := c.rooms.RoomOf(m); ok && prev != code {
		c.captions.StopStream(m)
	}

	role := room.RoleViewer
	if c.authorizer != nil {
		role = c.authorizer.RoleFor(m, code)
	}
	members := c.rooms.Join(code, m, role)
	c.touch(code)
	metricJoins.WithLabelValues(string(role)).Inc()

	c.timers.Resync(code, func(snap timer.Snapshot) {
		c.rooms.Unicast(m, events.TimerUpdate(code, snap.SecondsRemaining, snap.Running))
	})
	c.objectives.Resync(code, func(text string) {
		c.rooms.Unicast(m, events.ObjectiveUpdate(code, text))
	})
	c.rooms.Unicast(m, events.Joined(code, string(role), members))

	log.Info().
		Str("session_code", code).
		Str("connection_id", m.ID()).
		Str("role", string(role)).
		Int("members", members).
		Msg("member joined session")
	return nil
}

func (c *Coordinator) reject(m room.Member, code, message string, err error) {
	metricViolations.WithLabelValues("join").Inc()
	log.Warn().Err(err).
		Str("session_code", code).
		Str("connection_id", m.ID()).
		Msg("join rejected, closing connection")
	c.rooms.Unicast(m, events.SessionError(code, message))
	m.Close()
}

// Handle routes a decoded command from the member
func (c *Coordinator) Handle(ctx context.Context, m room.Member, cmd events.Command) error {
	switch cmd := cmd.(type) {
	case events.JoinSession:
		return c.Join(ctx, m, cmd.Code)
	case events.LeaveSession:
		c.Leave(m)
		return nil
	}

	code, role, ok := c.rooms.Membership(m)
	if !ok {
		return c.violation(m, cmd, "", ErrNotInSession)
	}
	if scoped, ok := cmd.(events.SessionScoped); ok {
		if strings.TrimSpace(scoped.Session()) != code {
			return c.violation(m, cmd, code, ErrSessionMismatch)
		}
		if role != room.RolePresenter {
			return c.violation(m, cmd, code, ErrNotPresenter)
		}
	}
	c.touch(code)

	log.Debug().
		Str("session_code", code).
		Str("connection_id", m.ID()).
		Str("command", string(cmd.Type())).
		Msg("handling command")

	switch cmd := cmd.(type) {
	case events.StartTimer:
		c.timers.Start(code, cmd.SecondsRemaining)
	case events.StopTimer:
		c.timers.Stop(code, cmd.TimeLeft)
	case events.ResetTimer:
		c.timers.Reset(code)
	case events.SetObjective:
		c.objectives.Set(code, cmd.ObjectiveText)
	case events.StartCaptions:
		return c.captions.StartStream(ctx, m, code, cmd.Language)
	case events.StopCaptions:
		c.captions.StopStream(m)
	case events.RequestTranslation:
		go func() {
			if err := c.captions.RequestTranslation(ctx, m, code, cmd.Text, cmd.SourceLanguage, cmd.TargetLanguage); err != nil {
				log.Debug().Err(err).Str("session_code", code).Msg("translation request not served")
			}
		}()
	default:
		return fmt.Errorf("unhandled command %q", cmd.Type())
	}
	return nil
}

func (c *Coordinator) violation(m room.Member, cmd events.Command, code string, err error) error {
	metricViolations.WithLabelValues(string(cmd.Type())).Inc()
	log.Warn().Err(err).
		Str("session_code", code).
		Str("connection_id", m.ID()).
		Str("command", string(cmd.Type())).
		Msg("command rejected")
	return err
}

// PushAudio forwards an audio chunk from a presenter to its caption stream
func (c *Coordinator) PushAudio(m room.Member, chunk []byte) bool {
	if _, role, ok := c.rooms.Membership(m); !ok || role != room.RolePresenter {
		metricViolations.WithLabelValues("audio").Inc()
		return false
	}
	return c.captions.PushAudio(m, chunk)
}

// Leave removes the member from its session and stops its caption stream.
// Timer and objective state are kept.
func (c *Coordinator) Leave(m room.Member) {
	c.captions.StopStream(m)
	if code, ok := c.rooms.Leave(m); ok {
		c.touch(code)
		log.Info().Str("session_code", code).Str("connection_id", m.ID()).Msg("member left session")
	}
}

// Disconnect cleans up after a closed connection
func (c *Coordinator) Disconnect(m room.Member) {
	c.Leave(m)
}

// RoomStats returns room membership statistics
func (c *Coordinator) RoomStats() room.Stats {
	return c.rooms.Stats()
}

// Close stops every caption stream
func (c *Coordinator) Close() {
	c.captions.Close()
}

func (c *Coordinator) touch(code string) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[code]
	if !ok {
		s = &sessionState{createdAt: now}
		c.sessions[code] = s
		gaugeSessions.Inc()
	}
	s.lastActivity = now
}
