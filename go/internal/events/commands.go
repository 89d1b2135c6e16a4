package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// CommandType names a client to server message
type CommandType string

const (
	CommandJoinSession        CommandType = "joinSession"
	CommandLeaveSession       CommandType = "leaveSession"
	CommandStartTimer         CommandType = "startTimer"
	CommandStopTimer          CommandType = "stopTimer"
	CommandResetTimer         CommandType = "resetTimer"
	CommandSetObjective       CommandType = "setObjective"
	CommandStartCaptions      CommandType = "startCaptions"
	CommandStopCaptions       CommandType = "stopCaptions"
	CommandRequestTranslation CommandType = "requestTranslation"
)

var (
	ErrMalformedEnvelope = errors.New("malformed message envelope")
	ErrUnknownCommand    = errors.New("unknown command type")
	ErrMalformedPayload  = errors.New("malformed command payload")
)

// Command is one decoded client message. The set of implementations is closed.
type Command interface {
	Type() CommandType
}

// SessionScoped is implemented by commands that name the session they mutate
type SessionScoped interface {
	Command
	Session() string
}

type JoinSession struct {
	// Code is kept raw so the coordinator can reject non-string codes
	Code json.RawMessage `json:"code"`
}

type LeaveSession struct{}

type StartTimer struct {
	SessionCode      string `json:"sessionCode"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

type StopTimer struct {
	SessionCode string `json:"sessionCode"`
	TimeLeft    *int   `json:"timeLeft,omitempty"`
}

type ResetTimer struct {
	SessionCode string `json:"sessionCode"`
}

type SetObjective struct {
	SessionCode   string `json:"sessionCode"`
	ObjectiveText string `json:"objectiveText"`
}

type StartCaptions struct {
	SessionCode string `json:"sessionCode"`
	Language    string `json:"language"`
}

type StopCaptions struct {
	SessionCode string `json:"sessionCode"`
}

type RequestTranslation struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

func (JoinSession) Type() CommandType        { return CommandJoinSession }
func (LeaveSession) Type() CommandType       { return CommandLeaveSession }
func (StartTimer) Type() CommandType         { return CommandStartTimer }
func (StopTimer) Type() CommandType          { return CommandStopTimer }
func (ResetTimer) Type() CommandType         { return CommandResetTimer }
func (SetObjective) Type() CommandType       { return CommandSetObjective }
func (StartCaptions) Type() CommandType      { return CommandStartCaptions }
func (StopCaptions) Type() CommandType       { return CommandStopCaptions }
func (RequestTranslation) Type() CommandType { return CommandRequestTranslation }

func (c StartTimer) Session() string    { return c.SessionCode }
func (c StopTimer) Session() string     { return c.SessionCode }
func (c ResetTimer) Session() string    { return c.SessionCode }
func (c SetObjective) Session() string  { return c.SessionCode }
func (c StartCaptions) Session() string { return c.SessionCode }
func (c StopCaptions) Session() string  { return c.SessionCode }

type envelope struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseCommand decodes a text frame into a typed command
func ParseCommand(message []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch env.Type {
	case CommandJoinSession:
		return parseJoin(env.Data), nil
	case CommandLeaveSession:
		return LeaveSession{}, nil
	case CommandStartTimer:
		return decode[StartTimer](env)
	case CommandStopTimer:
		return decode[StopTimer](env)
	case CommandResetTimer:
		return decode[ResetTimer](env)
	case CommandSetObjective:
		return decode[SetObjective](env)
	case CommandStartCaptions:
		return decode[StartCaptions](env)
	case CommandStopCaptions:
		return decode[StopCaptions](env)
	case CommandRequestTranslation:
		return decode[RequestTranslation](env)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}
}

func decode[T Command](env envelope) (Command, error) {
	var cmd T
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformedPayload, env.Type)
	}
	if err := json.Unmarshal(env.Data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Type, err)
	}
	return cmd, nil
}

// parseJoin accepts both {"code": "..."} and a bare value as the join data.
func parseJoin(data json.RawMessage) JoinSession {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var join JoinSession
		if err := json.Unmarshal(trimmed, &join); err == nil {
			return join
		}
		return JoinSession{}
	}
	return JoinSession{Code: json.RawMessage(trimmed)}
}
