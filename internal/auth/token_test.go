// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens, and missing claims

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-jwt-signing")

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	token, err := verifier.Generate("alice", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if got != "alice" {
		t.Errorf("Verify() = %q, want %q", got, "alice")
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				other := NewJWTVerifier([]byte("different-secret"))
				token, _ := other.Generate("alice", time.Hour)
				return token
			}(),
		},
		{
			name: "wrong algorithm",
			token: func() string {
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
					"sub": "alice",
					"exp": time.Now().Add(time.Hour).Unix(),
				}).SignedString(testSecret)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	// Generate a token that expired 1 hour ago
	token, err := verifier.Generate("alice", -time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = verifier.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_MissingClaims(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{
			name:   "no sub",
			claims: jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()},
		},
		{
			name:   "empty sub",
			claims: jwt.MapClaims{"sub": "", "exp": time.Now().Add(time.Hour).Unix()},
		},
		{
			name:   "no exp",
			claims: jwt.MapClaims{"sub": "alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString(testSecret)
			if err != nil {
				t.Fatalf("signing: %v", err)
			}

			_, err = verifier.Verify(token)
			if !errors.Is(err, ErrMissingClaim) {
				t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
			}
		})
	}
}

func TestJWTVerifier_DifferentSubjects(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	for _, subject := range []string{"alice", "bob", "Пользователь"} {
		token, err := verifier.Generate(subject, time.Hour)
		if err != nil {
			t.Fatalf("Generate(%q) error = %v", subject, err)
		}

		got, err := verifier.Verify(token)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}

		if got != subject {
			t.Errorf("Verify() = %q, want %q", got, subject)
		}
	}
}
