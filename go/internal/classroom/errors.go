package classroom

import "errors"

var (
	ErrInvalidSessionCode = errors.New("invalid session code")
	ErrUnknownSession     = errors.New("unknown session code")
	ErrNotInSession       = errors.New("connection has not joined a session")
	ErrSessionMismatch    = errors.New("command names a different session")
	ErrNotPresenter       = errors.New("command requires the presenter role")
)
