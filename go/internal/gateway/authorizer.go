package gateway

import (
	"github.com/rs/zerolog/log"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/room"
)

// TokenValidator checks a presenter token against a session code
type TokenValidator interface {
	Validate(token, code string) error
}

// TokenAuthorizer grants the presenter role to connections carrying a valid
// token for the session they join. Everyone else is a viewer.
type TokenAuthorizer struct {
	validator TokenValidator
}

// NewTokenAuthorizer creates an authorizer backed by the validator
func NewTokenAuthorizer(validator TokenValidator) *TokenAuthorizer {
	return &TokenAuthorizer{validator: validator}
}

// RoleFor returns the role the member holds in the session
func (a *TokenAuthorizer) RoleFor(m room.Member, code string) room.Role {
	conn, ok := m.(*Connection)
	if !ok || conn.Token() == "" {
		return room.RoleViewer
	}
	if err := a.validator.Validate(conn.Token(), code); err != nil {
		log.Warn().
			Err(err).
			Str("session_code", code).
			Str("connection_id", conn.ID()).
			Msg("presenter token rejected, joining as viewer")
		return room.RoleViewer
	}
	return room.RolePresenter
}
