package auth

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestMintValidate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer := NewIssuer("s3cret", time.Hour, clock)

	token, exp := issuer.Mint("ABC123")
	if !exp.After(clock.Now()) {
		t.Fatalf("expiry %v not in the future", exp)
	}
	if err := issuer.Validate(token, "ABC123"); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer := NewIssuer("s3cret", time.Hour, clock)
	token, _ := issuer.Mint("ABC123")

	other := NewIssuer("other", time.Hour, clock)
	forged, _ := other.Mint("ABC123")

	tests := []struct {
		name  string
		token string
		code  string
		want  error
	}{
		{"garbage", "!!!", "ABC123", ErrTokenFormat},
		{"no separators", base64.RawURLEncoding.EncodeToString([]byte("nodots")), "ABC123", ErrTokenFormat},
		{"wrong secret", forged, "ABC123", ErrTokenSig},
		{"wrong session", token, "XYZ999", ErrTokenSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := issuer.Validate(tt.token, tt.code); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTokenExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer := NewIssuer("s3cret", time.Minute, clock)
	token, _ := issuer.Mint("ABC123")

	clock.Advance(2 * time.Minute)
	if err := issuer.Validate(token, "ABC123"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expiry, got %v", err)
	}
}
