package activity

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/events"
)

// Event is the activity envelope published for each recorded room event
type Event struct {
	ID          uuid.UUID       `json:"eventId"`
	Type        string          `json:"eventType"`
	SessionCode string          `json:"sessionCode"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// Publisher records activity events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// FromRoomEvent converts a broadcast event into an activity event
func FromRoomEvent(code string, ev *events.Event) Event {
	id, err := uuid.Parse(ev.ID)
	if err != nil {
		id = uuid.New()
	}
	return Event{
		ID:          id,
		Type:        string(ev.Type),
		SessionCode: code,
		Timestamp:   ev.Timestamp,
		Payload:     ev.Data,
	}
}

// Subject returns the NATS subject for an event: <prefix>.<session>.<type>
func Subject(prefix string, event Event) string {
	return prefix + "." + subjectToken(event.SessionCode) + "." + subjectToken(event.Type)
}

// subjectToken replaces characters that are not safe inside a subject token
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// LogPublisher writes activity to the log for development
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	log.Debug().
		Str("event_id", event.ID.String()).
		Str("event_type", event.Type).
		Str("session_code", event.SessionCode).
		Msg("activity")
	return nil
}
