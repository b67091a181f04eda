// Package auth provides token providers for sdk.CommandContext.Auth.
//
// The core calls GetToken on every request and never caches the result, so
// providers decide for themselves how fresh a token must be.
package auth

import (
	"context"
)

// StaticToken always returns the same token
type StaticToken string

// Static returns a provider yielding token on every call. An empty token
// sends no Authorization header.
func Static(token string) StaticToken {
	return StaticToken(token)
}

// None returns a provider that never yields a token
func None() StaticToken {
	return ""
}

// GetToken implements sdk.AuthProvider
func (t StaticToken) GetToken(ctx context.Context) (string, error) {
	return string(t), nil
}
