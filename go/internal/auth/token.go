package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrTokenFormat  = errors.New("invalid token format")
	ErrTokenSig     = errors.New("invalid token signature")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenSession = errors.New("token issued for a different session")
)

// Issuer mints and checks presenter tokens bound to a session code.
// Format: base64url(code + "." + exp_unix + "." + hex(hmac_sha256(secret, code+"."+exp)))
type Issuer struct {
	secret []byte
	ttl    time.Duration
	skew   time.Duration
	clock  clockwork.Clock
}

// NewIssuer creates a token issuer
func NewIssuer(secret string, ttl time.Duration, clock clockwork.Clock) *Issuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		skew:   30 * time.Second,
		clock:  clock,
	}
}

// Mint returns a token for the session code and its expiry
func (i *Issuer) Mint(code string) (string, time.Time) {
	exp := i.clock.Now().Add(i.ttl).Truncate(time.Second)
	msg := code + "." + strconv.FormatInt(exp.Unix(), 10)
	raw := msg + "." + hex.EncodeToString(i.sign(msg))
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), exp
}

// Validate checks the token signature, expiry and session binding
func (i *Issuer) Validate(token, code string) error {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenFormat
	}
	// Split from the right so codes containing dots still parse.
	raw := string(b)
	sigAt := strings.LastIndexByte(raw, '.')
	if sigAt <= 0 {
		return ErrTokenFormat
	}
	msg, sigHex := raw[:sigAt], raw[sigAt+1:]
	expAt := strings.LastIndexByte(msg, '.')
	if expAt <= 0 {
		return ErrTokenFormat
	}
	tokenCode, expStr := msg[:expAt], msg[expAt+1:]

	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return ErrTokenFormat
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return ErrTokenFormat
	}
	if !hmac.Equal(i.sign(msg), got) {
		return ErrTokenSig
	}
	if tokenCode != code {
		return ErrTokenSession
	}
	if i.clock.Now().After(time.Unix(exp, 0).Add(i.skew)) {
		return ErrTokenExpired
	}
	return nil
}

func (i *Issuer) sign(msg string) []byte {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
