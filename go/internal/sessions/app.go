package sessions

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultCodeLen   = 6
	maxCodeLen       = 64
	generateAttempts = 5
)

// TokenIssuer mints and checks presenter tokens bound to a session code
type TokenIssuer interface {
	Mint(code string) (string, time.Time)
	Validate(token, code string) error
}

// Generated is a freshly allocated session code with its presenter token
type Generated struct {
	Session   *Session  `json:"session"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// App allocates and validates session codes
type App struct {
	store   Store
	issuer  TokenIssuer
	codeLen int
}

// NewApp creates the session code application layer
func NewApp(store Store, issuer TokenIssuer) *App {
	return &App{store: store, issuer: issuer, codeLen: defaultCodeLen}
}

// Generate stores a code for the presenter. When requested is empty a random code
// is allocated. A presenter that already holds a code must present a valid token
// for that code.
func (a *App) Generate(ctx context.Context, presenterID, requested, token string) (*Generated, error) {
	presenterID = strings.TrimSpace(presenterID)
	if presenterID == "" {
		return nil, fmt.Errorf("%w: presenterId is required", ErrInvalidRequest)
	}

	current, err := a.store.GetByPresenter(ctx, presenterID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if verr := a.issuer.Validate(token, current.Code); verr != nil {
			log.Warn().
				Err(verr).
				Str("session_code", current.Code).
				Msg("session code change without a valid presenter token")
			return nil, ErrUnauthorized
		}
	}

	var session *Session
	if requested != "" {
		code, verr := NormalizeCode(requested)
		if verr != nil {
			return nil, verr
		}
		session, err = a.store.Create(ctx, code, presenterID)
	} else {
		session, err = a.createRandom(ctx, presenterID)
	}
	if err != nil {
		return nil, err
	}

	token, exp := a.issuer.Mint(session.Code)
	log.Info().
		Str("session_code", session.Code).
		Str("presenter_id", presenterID).
		Msg("session code generated")

	return &Generated{Session: session, Token: token, ExpiresAt: exp}, nil
}

func (a *App) createRandom(ctx context.Context, presenterID string) (*Session, error) {
	for attempt := 0; attempt < generateAttempts; attempt++ {
		code, err := randomCode(a.codeLen)
		if err != nil {
			return nil, err
		}
		session, err := a.store.Create(ctx, code, presenterID)
		if errors.Is(err, ErrCodeTaken) {
			log.Debug().Str("session_code", code).Int("attempt", attempt+1).Msg("generated code collided, retrying")
			continue
		}
		return session, err
	}
	return nil, fmt.Errorf("failed to allocate a free session code after %d attempts: %w", generateAttempts, ErrCodeTaken)
}

// Validate returns the session for a code
func (a *App) Validate(ctx context.Context, code string) (*Session, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	return a.store.Get(ctx, code)
}

// Exists reports whether the code has been allocated
func (a *App) Exists(ctx context.Context, code string) (bool, error) {
	_, err := a.store.Get(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NormalizeCode trims a caller supplied code and checks it is usable
func NormalizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: code is empty", ErrInvalidRequest)
	}
	if len(code) > maxCodeLen {
		return "", fmt.Errorf("%w: code longer than %d bytes", ErrInvalidRequest, maxCodeLen)
	}
	for _, r := range code {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '/' {
			return "", fmt.Errorf("%w: code contains invalid characters", ErrInvalidRequest)
		}
	}
	return code, nil
}

func randomCode(n int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate session code: %w", err)
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
