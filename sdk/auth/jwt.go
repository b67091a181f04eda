package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway is how long before expiry a JWTSource refreshes its token
const DefaultLeeway = 30 * time.Second

// RefreshFunc obtains a new bearer token, e.g. from the identity provider's
// refresh endpoint.
type RefreshFunc func(ctx context.Context) (string, error)

// JWTSource serves a bearer JWT and refreshes it shortly before it expires.
//
// The token's signature is not verified; the backend does that. Only the exp
// claim is read, to decide when to refresh. Tokens without exp never refresh
// on their own.
//
// Example:
//
//	src, err := auth.NewJWTSource(idToken, func(ctx context.Context) (string, error) {
//	    return identity.Refresh(ctx)
//	})
//	cc.Auth = src
type JWTSource struct {
	mu      sync.Mutex
	token   string
	expiry  time.Time
	refresh RefreshFunc
	parser  *jwt.Parser
	now     func() time.Time

	// Leeway is subtracted from the expiry when deciding to refresh
	Leeway time.Duration
}

// NewJWTSource creates a JWTSource seeded with token. refresh may be nil, in
// which case an expired token is still returned and the backend decides.
func NewJWTSource(token string, refresh RefreshFunc) (*JWTSource, error) {
	s := &JWTSource{
		refresh: refresh,
		parser:  jwt.NewParser(),
		now:     time.Now,
		Leeway:  DefaultLeeway,
	}
	if token != "" {
		if err := s.set(token); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// GetToken implements sdk.AuthProvider. It refreshes first when the current
// token is missing or within Leeway of its expiry and a RefreshFunc is set.
func (s *JWTSource) GetToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refresh != nil && s.needsRefresh() {
		if _, err := s.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return s.token, nil
}

// RefreshToken implements sdk.TokenRefresher, forcing a refresh
func (s *JWTSource) RefreshToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refresh == nil {
		return "", errors.New("jwt source has no refresh function")
	}
	return s.refreshLocked(ctx)
}

// Expiry returns the exp claim of the current token, zero if none
func (s *JWTSource) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}

func (s *JWTSource) needsRefresh() bool {
	if s.token == "" {
		return true
	}
	if s.expiry.IsZero() {
		return false
	}
	return !s.now().Before(s.expiry.Add(-s.Leeway))
}

func (s *JWTSource) refreshLocked(ctx context.Context) (string, error) {
	token, err := s.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	// An empty refresh result means there is no token to send
	if token == "" {
		s.token = ""
		s.expiry = time.Time{}
		return "", nil
	}
	if err := s.set(token); err != nil {
		return "", err
	}
	return s.token, nil
}

// set parses token's claims without verifying the signature
func (s *JWTSource) set(token string) error {
	claims := jwt.RegisteredClaims{}
	if _, _, err := s.parser.ParseUnverified(token, &claims); err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	s.token = token
	s.expiry = time.Time{}
	if claims.ExpiresAt != nil {
		s.expiry = claims.ExpiresAt.Time
	}
	return nil
}
