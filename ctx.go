package identity

import (
	"context"

	"github.com/goliatone/go-router"
)

var claimsCtxKey = &contextKey{"claims"}
var refreshTokenCtxKey = &contextKey{"refresh_token"}

type contextKey struct {
	name string
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// WithRefreshToken stashes the raw bearer string the refresh guard verified.
// Only the refresh path sets it; handlers need the original token to check
// it against the stored fingerprint.
func WithRefreshToken(r context.Context, token string) context.Context {
	return context.WithValue(r, refreshTokenCtxKey, token)
}

// GetRefreshToken extracts the raw refresh token from the standard context
func GetRefreshToken(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(refreshTokenCtxKey).(string)
	return raw, ok
}

// GetRouterClaims extracts the AuthClaims from the router context
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user" // Default key used by JWT middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// GetRouterRefreshToken extracts the raw refresh token stored by the refresh guard.
func GetRouterRefreshToken(ctx router.Context, key string) (string, bool) {
	if key == "" {
		key = RefreshTokenLocalsKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return "", false
	}
	token, ok := raw.(string)
	return token, ok
}
