package sessions

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("session code not found")
	ErrCodeTaken      = errors.New("session code already in use")
	ErrInvalidRequest = errors.New("invalid session request")
	ErrUnauthorized   = errors.New("presenter token required for the current session code")
)

// Session is an allocated session code and the presenter that owns it
type Session struct {
	Code        string    `json:"code"`
	PresenterID string    `json:"presenterId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists session codes. A presenter owns at most one code.
type Store interface {
	// Create stores the code for the presenter, replacing the presenter's previous code
	Create(ctx context.Context, code, presenterID string) (*Session, error)
	Get(ctx context.Context, code string) (*Session, error)
	// GetByPresenter returns the code the presenter currently holds
	GetByPresenter(ctx context.Context, presenterID string) (*Session, error)
}
