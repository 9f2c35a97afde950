// ABOUTME: Resolves a bearer token into a live Identity backed by the user table
// ABOUTME: Classifies failures into AuthError kinds so callers can pick a close reason

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/solace-gateway/internal/store"
)

// ErrPrincipalUnavailable is wrapped when the user table cannot be consulted.
var ErrPrincipalUnavailable = errors.New("principal lookup unavailable")

// ErrBadCredentials is returned by SignIn for an unknown user or wrong password.
var ErrBadCredentials = errors.New("incorrect username or password")

// Kind classifies an authentication failure.
type Kind int

const (
	KindInvalid Kind = iota
	KindExpired
	KindMalformedClaims
	KindPrincipalUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindExpired:
		return "expired"
	case KindMalformedClaims:
		return "malformed_claims"
	case KindPrincipalUnavailable:
		return "principal_unavailable"
	default:
		return "unknown"
	}
}

// AuthError is the only error type Validate returns.
type AuthError struct {
	Kind Kind
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Identity is an authenticated principal. It does not change for the
// lifetime of a connection.
type Identity struct {
	ID       int64
	Username string
}

// UserLookup is the slice of the store the validator reads.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// Validator turns tokens into identities.
type Validator struct {
	verifier *JWTVerifier
	users    UserLookup
	ttl      time.Duration
	logger   *slog.Logger
}

// NewValidator creates a Validator. ttl is the lifetime of tokens minted by SignIn.
func NewValidator(secret []byte, users UserLookup, ttl time.Duration, logger *slog.Logger) *Validator {
	return &Validator{
		verifier: NewJWTVerifier(secret),
		users:    users,
		ttl:      ttl,
		logger:   logger.With("component", "auth"),
	}
}

// Validate checks the token signature and expiry, then confirms the subject
// still exists. Every failure is an *AuthError.
func (v *Validator) Validate(ctx context.Context, token string) (Identity, error) {
	sub, err := v.verifier.Verify(token)
	if err != nil {
		return Identity{}, classify(err)
	}

	user, err := v.users.GetUserByUsername(ctx, sub)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, &AuthError{Kind: KindInvalid, Err: fmt.Errorf("%w: unknown subject %q", ErrInvalidToken, sub)}
	}
	if err != nil {
		v.logger.Warn("principal lookup failed", "subject", sub, "error", err)
		return Identity{}, &AuthError{Kind: KindPrincipalUnavailable, Err: fmt.Errorf("%w: %v", ErrPrincipalUnavailable, err)}
	}

	return Identity{ID: user.ID, Username: user.Username}, nil
}

// Generate mints a token for username with the given lifetime.
func (v *Validator) Generate(username string, ttl time.Duration) (string, error) {
	return v.verifier.Generate(username, ttl)
}

// SignIn checks a username/password pair and mints a token with the
// configured lifetime.
func (v *Validator) SignIn(ctx context.Context, username, password string) (string, error) {
	user, err := v.users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrBadCredentials
	}
	if err != nil {
		return "", fmt.Errorf("looking up user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return "", ErrBadCredentials
	}

	token, err := v.verifier.Generate(user.Username, v.ttl)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

func classify(err error) *AuthError {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return &AuthError{Kind: KindExpired, Err: err}
	case errors.Is(err, ErrMissingClaim):
		return &AuthError{Kind: KindMalformedClaims, Err: err}
	default:
		return &AuthError{Kind: KindInvalid, Err: err}
	}
}
