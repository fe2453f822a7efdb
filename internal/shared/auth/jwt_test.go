package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s, err := NewSigner("secret", "dev")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	token, err := s.Sign(Claims{Sub: "google:1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Sub != "google:1" || claims.Email != "a@example.com" || claims.Exp == 0 {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsTamperedAndExpired(t *testing.T) {
	s, _ := NewSigner("secret", "dev")
	other, _ := NewSigner("other", "dev")

	token, _ := other.Sign(Claims{Sub: "google:1"})
	if _, err := s.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for foreign signature, got %v", err)
	}

	s.now = func() time.Time { return time.Unix(1000, 0) }
	expired, _ := s.Sign(Claims{Sub: "google:1", Exp: 1001})
	s.now = func() time.Time { return time.Unix(2000, 0) }
	if _, err := s.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}

	if _, err := s.Verify(strings.Repeat("x", 10)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected malformed token rejected, got %v", err)
	}
}

func TestNewSignerRequiresSecretInProduction(t *testing.T) {
	if _, err := NewSigner("", "production"); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if _, err := NewSigner("", "dev"); err != nil {
		t.Fatalf("dev should fall back: %v", err)
	}
}
