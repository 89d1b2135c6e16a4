package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every server to client message
type Event struct {
	ID          string          `json:"id"`
	SessionCode string          `json:"sessionCode,omitempty"`
	Type        EventType       `json:"type"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data"`

	// Transient marks high-frequency events (ticks, interim captions) that are
	// delivered to the room but not recorded as activity.
	Transient bool `json:"-"`
}

// WithTransient marks the event transient and returns it
func (e *Event) WithTransient() *Event {
	e.Transient = true
	return e
}

// EventType names a server to client message
type EventType string

const (
	EventTypeTimerUpdate       EventType = "timerUpdate"
	EventTypeTimerReset        EventType = "timerReset"
	EventTypeObjectiveUpdate   EventType = "objectiveUpdate"
	EventTypeCaption           EventType = "caption"
	EventTypeTranslationResult EventType = "translationResult"
	EventTypePipelineError     EventType = "pipelineError"
	EventTypeSessionError      EventType = "sessionError"
	EventTypeJoined            EventType = "joined"
)

// TimerPayload is carried by timerUpdate and timerReset
type TimerPayload struct {
	SecondsRemaining int  `json:"secondsRemaining"`
	Running          bool `json:"running"`
}

// ObjectivePayload is carried by objectiveUpdate
type ObjectivePayload struct {
	Text string `json:"text"`
}

// CaptionPayload is one interim or final transcript in the source language.
// Translations travel separately as translationResult.
type CaptionPayload struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"sourceLanguage"`
	IsFinal        bool   `json:"isFinal"`
}

// TranslationResultPayload answers a single requestTranslation
type TranslationResultPayload struct {
	Text           string `json:"text"`
	SourceText     string `json:"sourceText"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

// ErrorPayload is carried by pipelineError and sessionError
type ErrorPayload struct {
	Message string `json:"message"`
}

// JoinedPayload acknowledges a successful join
type JoinedPayload struct {
	SessionCode string `json:"sessionCode"`
	Role        string `json:"role"`
	Members     int    `json:"members"`
}

// New builds an event with a fresh id and the given payload
func New(eventType EventType, sessionCode string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:          uuid.NewString(),
		SessionCode: sessionCode,
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		Data:        data,
	}, nil
}

// MustNew is New for payloads that are plain structs and cannot fail to marshal
func MustNew(eventType EventType, sessionCode string, payload interface{}) *Event {
	ev, err := New(eventType, sessionCode, payload)
	if err != nil {
		panic(err)
	}
	return ev
}

func TimerUpdate(code string, secondsRemaining int, running bool) *Event {
	return MustNew(EventTypeTimerUpdate, code, TimerPayload{SecondsRemaining: secondsRemaining, Running: running})
}

func TimerReset(code string) *Event {
	return MustNew(EventTypeTimerReset, code, TimerPayload{})
}

func ObjectiveUpdate(code, text string) *Event {
	return MustNew(EventTypeObjectiveUpdate, code, ObjectivePayload{Text: text})
}

func Caption(code string, payload CaptionPayload) *Event {
	return MustNew(EventTypeCaption, code, payload)
}

func TranslationResult(code string, payload TranslationResultPayload) *Event {
	return MustNew(EventTypeTranslationResult, code, payload)
}

func PipelineError(code, message string) *Event {
	return MustNew(EventTypePipelineError, code, ErrorPayload{Message: message})
}

func SessionError(code, message string) *Event {
	return MustNew(EventTypeSessionError, code, ErrorPayload{Message: message})
}

func Joined(code, role string, members int) *Event {
	return MustNew(EventTypeJoined, code, JoinedPayload{SessionCode: code, Role: role, Members: members})
}
