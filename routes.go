package identity

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/middleware/jwtware"
	"github.com/goliatone/go-router"
)

// TokenKind selects which token service verifies a guarded route.
type TokenKind string

const (
	// TokenKindAccess routes are verified against the access secret.
	TokenKindAccess TokenKind = "access"
	// TokenKindRefresh routes are verified against the refresh secret.
	// The guard also stashes the raw token so the handler can match it
	// against the stored fingerprint.
	TokenKindRefresh TokenKind = "refresh"
)

// RefreshTokenLocalsKey is where the refresh guard stores the raw
// bearer string in the router context Locals.
const RefreshTokenLocalsKey = "refresh_token"

// RouteDescriptor declares the protection level of a single route.
// The zero value means: authenticated with an access token, any role.
type RouteDescriptor struct {
	// Public routes skip token verification entirely.
	Public bool
	// Roles is the permitted set; any listed role passes. Empty means
	// any authenticated principal.
	Roles []UserRole
	// TokenKind picks the verifying secret. Defaults to TokenKindAccess.
	TokenKind TokenKind
}

// Route names used by the default descriptor table and the HTTP
// controller registration.
const (
	RouteSignUp      = "auth.signup"
	RouteSignIn      = "auth.signin"
	RouteRefresh     = "auth.refresh"
	RouteLogout      = "auth.logout"
	RouteUsersMe     = "users.me"
	RouteUsersList   = "users.list"
	RouteUserSetRole = "users.set_role"
)

// DefaultRouteDescriptors is the protection table for the stock HTTP
// surface. Sign up and sign in are the only public routes; refresh is
// the only route verified against the refresh secret.
func DefaultRouteDescriptors() map[string]RouteDescriptor {
	return map[string]RouteDescriptor{
		RouteSignUp:      {Public: true},
		RouteSignIn:      {Public: true},
		RouteRefresh:     {TokenKind: TokenKindRefresh},
		RouteLogout:      {},
		RouteUsersMe:     {},
		RouteUsersList:   {Roles: []UserRole{RoleAdmin}},
		RouteUserSetRole: {Roles: []UserRole{RoleAdmin}},
	}
}

// Guard builds jwtware middleware from route descriptors, wiring the
// right token service and role checks for each route.
type Guard struct {
	access       TokenService
	refresh      TokenService
	contextKey   string
	tokenLookup  string
	authScheme   string
	errorHandler func(router.Context, error) error
	logger       Logger
}

// NewGuard creates a Guard around the authenticator's two token
// services using the shared config for lookup and scheme settings.
func NewGuard(auther *Auther, opts Config) *Guard {
	g := &Guard{
		access:      auther.AccessTokenService(),
		refresh:     auther.RefreshTokenService(),
		contextKey:  opts.GetContextKey(),
		tokenLookup: opts.GetTokenLookup(),
		authScheme:  opts.GetAuthScheme(),
		logger:      defLogger{},
	}
	g.errorHandler = g.renderAuthError
	return g
}

// ContextKey reports the Locals key verified claims are stored under.
func (g *Guard) ContextKey() string {
	return g.contextKey
}

// WithLogger sets the logger instance
func (g *Guard) WithLogger(logger Logger) *Guard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithErrorHandler replaces how guard failures are rendered.
func (g *Guard) WithErrorHandler(handler func(router.Context, error) error) *Guard {
	if handler != nil {
		g.errorHandler = handler
	}
	return g
}

// Middleware returns the middleware chain for a descriptor. Public
// descriptors produce a pass-through.
func (g *Guard) Middleware(desc RouteDescriptor) router.MiddlewareFunc {
	if desc.Public {
		return func(hf router.HandlerFunc) router.HandlerFunc {
			return hf
		}
	}

	svc := g.access
	rawTokenKey := ""
	if desc.TokenKind == TokenKindRefresh {
		svc = g.refresh
		rawTokenKey = RefreshTokenLocalsKey
	}

	roles := make([]string, 0, len(desc.Roles))
	for _, role := range desc.Roles {
		roles = append(roles, string(role))
	}

	return jwtware.New(jwtware.Config{
		TokenValidator: guardValidator{svc},
		ContextKey:     g.contextKey,
		RawTokenKey:    rawTokenKey,
		TokenLookup:    g.tokenLookup,
		AuthScheme:     g.authScheme,
		PermittedRoles: roles,
		ErrorHandler:   g.errorHandler,
		ContextEnricher: func(ctx context.Context, raw string, claims jwtware.AuthClaims) context.Context {
			if ac, ok := claims.(AuthClaims); ok {
				ctx = WithClaimsContext(ctx, ac)
			}
			if rawTokenKey != "" {
				ctx = WithRefreshToken(ctx, raw)
			}
			return ctx
		},
	})
}

// renderAuthError maps guard failures onto the package error
// vocabulary before rendering, so handlers and middleware speak the
// same codes.
func (g *Guard) renderAuthError(ctx router.Context, err error) error {
	if errors.Is(err, jwtware.ErrInsufficientRole) {
		g.logger.Debug("guard rejected request", "reason", "insufficient role")
		return RenderError(ctx, forbidden(err))
	}

	g.logger.Debug("guard rejected request", "error", err)
	return RenderError(ctx, invalidToken(err))
}

// guardValidator adapts a TokenService to the jwtware validator
// contract.
type guardValidator struct {
	svc TokenService
}

func (v guardValidator) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := v.svc.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func forbidden(cause error) error {
	clone := ErrForbidden.Clone()
	if clone == nil {
		return ErrForbidden
	}
	clone.Source = cause
	return clone
}
