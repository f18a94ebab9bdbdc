package jwtware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
)

// AuthClaims mirrors the claims surface the handlers downstream care
// about. The concrete type is produced by the configured TokenValidator.
type AuthClaims interface {
	Subject() string
	Email() string
	Role() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
}

// TokenValidator parses and verifies a raw token string into claims.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

var (
	// ErrJWTMissingOrMalformed is returned when no token can be
	// extracted from the request, or the extracted value is empty.
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
	// ErrInsufficientRole is returned when the token verified but its
	// role does not satisfy the route's requirements.
	ErrInsufficientRole = errors.New("insufficient role")
)

// Config defines the middleware behavior. Either TokenValidator or one
// of the signing key options must be provided.
type Config struct {
	// Filter defines a function to skip the middleware.
	// Optional. Default: nil
	Filter func(router.Context) bool

	// SuccessHandler is executed once the token is verified and every
	// authorization check passed.
	// Optional. Default: nil
	SuccessHandler router.HandlerFunc

	// ErrorHandler is executed when token extraction, validation, or
	// authorization fails. It receives the originating error.
	// Optional. Default: 401 (or 403 for ErrInsufficientRole).
	ErrorHandler func(router.Context, error) error

	// TokenValidator verifies raw tokens. When set it takes precedence
	// over SigningKey/SigningKeys/KeyFunc/JWKSetURLs.
	TokenValidator TokenValidator

	// SigningKey is the primary key used to validate tokens. Used as a
	// fallback when TokenValidator is not provided.
	SigningKey SigningKey

	// SigningKeys holds multiple keys indexed by kid header.
	SigningKeys map[string]SigningKey

	// KeyFunc is a user-provided jwt.Keyfunc. Takes precedence over
	// SigningKey/SigningKeys/JWKSetURLs.
	KeyFunc jwt.Keyfunc

	// JWKSetURLs is a list of JSON Web Key Set endpoints used to build
	// a keyfunc with hot refresh.
	JWKSetURLs []string

	// Claims defines the prototype decoded into when the fallback
	// parser is used. Must implement AuthClaims.
	// Optional. Default: jwt.MapClaims via mapClaims wrapper.
	Claims jwt.Claims

	// ContextKey is used to store claims in the router context Locals.
	// Optional. Default: "user"
	ContextKey string

	// RawTokenKey, when set, stores the raw extracted token string in
	// the router context Locals under that key. Handlers that need to
	// fingerprint the presented token (refresh rotation) read it back.
	// Optional. Default: "" (raw token is not stashed)
	RawTokenKey string

	// TokenLookup is a string in the form of "<source>:<name>" used to
	// extract the token. Sources can be chained with ",".
	// Optional. Default: "header:Authorization"
	// Possible values: "header:<name>", "query:<name>",
	// "param:<name>", "cookie:<name>"
	TokenLookup string

	// AuthScheme is stripped from the header value before validation.
	// Only used with the "header:" lookup.
	// Optional. Default: "Bearer"
	AuthScheme string

	// PermittedRoles is a set of roles, any of which satisfies the
	// route. Empty means any authenticated principal.
	PermittedRoles []string

	// RequiredRole must match the claims role exactly.
	RequiredRole string

	// MinimumRole is checked through AuthClaims.IsAtLeast.
	MinimumRole string

	// RoleChecker is a custom authorization predicate. Runs after the
	// declarative role checks above.
	RoleChecker func(claims AuthClaims) bool

	// ContextEnricher lets callers push verified claims (and the raw
	// token) into the request's context.Context so code below the
	// router boundary can read them.
	ContextEnricher func(ctx context.Context, raw string, claims AuthClaims) context.Context

	// ValidationListeners are notified after every validation attempt,
	// success or failure.
	ValidationListeners []func(claims AuthClaims, err error)
}

// SigningKey holds a signing key and the algorithm it is valid for.
type SigningKey struct {
	// JWTAlg is the algorithm the key is intended for, e.g. "HS256".
	// Empty means any algorithm, which is not recommended.
	JWTAlg string
	// Key is the cryptographic key, []byte for HMAC algorithms.
	Key any
}

type extractorFunc func(c router.Context) (string, error)

// New creates a token verification middleware from the given config.
func New(config ...Config) router.MiddlewareFunc {
	cfg := makeConfig(config...)

	extractors := makeExtractors(cfg)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if cfg.Filter != nil && cfg.Filter(c) {
				return hf(c)
			}

			raw, err := extractToken(c, extractors)
			if err != nil {
				notify(cfg, nil, err)
				return cfg.ErrorHandler(c, err)
			}

			claims, err := cfg.TokenValidator.Validate(raw)
			notify(cfg, claims, err)
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}

			if err := checkAuthorization(cfg, claims); err != nil {
				return cfg.ErrorHandler(c, err)
			}

			c.Locals(cfg.ContextKey, claims)
			if cfg.RawTokenKey != "" {
				c.Locals(cfg.RawTokenKey, raw)
			}

			if cfg.ContextEnricher != nil {
				c.SetContext(cfg.ContextEnricher(c.Context(), raw, claims))
			}

			if cfg.SuccessHandler != nil {
				return cfg.SuccessHandler(c)
			}

			return hf(c)
		}
	}
}

func makeConfig(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = "header:Authorization"
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	if cfg.TokenValidator == nil {
		cfg.TokenValidator = makeFallbackValidator(cfg)
	}

	return cfg
}

func defaultErrorHandler(c router.Context, err error) error {
	if errors.Is(err, ErrInsufficientRole) {
		return c.Status(403).SendString("Forbidden")
	}
	if errors.Is(err, ErrJWTMissingOrMalformed) {
		return c.Status(400).SendString("Missing or malformed JWT")
	}
	return c.Status(401).SendString("Invalid or expired JWT")
}

func checkAuthorization(cfg Config, claims AuthClaims) error {
	if len(cfg.PermittedRoles) > 0 {
		permitted := false
		for _, role := range cfg.PermittedRoles {
			if claims.HasRole(role) {
				permitted = true
				break
			}
		}
		if !permitted {
			return ErrInsufficientRole
		}
	}

	if cfg.RequiredRole != "" && !claims.HasRole(cfg.RequiredRole) {
		return ErrInsufficientRole
	}

	if cfg.MinimumRole != "" && !claims.IsAtLeast(cfg.MinimumRole) {
		return ErrInsufficientRole
	}

	if cfg.RoleChecker != nil && !cfg.RoleChecker(claims) {
		return ErrInsufficientRole
	}

	return nil
}

func notify(cfg Config, claims AuthClaims, err error) {
	for _, listener := range cfg.ValidationListeners {
		listener(claims, err)
	}
}

func makeExtractors(cfg Config) []extractorFunc {
	var extractors []extractorFunc

	for _, lookup := range strings.Split(cfg.TokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(lookup), ":", 2)
		if len(parts) != 2 {
			continue
		}

		source, name := parts[0], parts[1]
		switch source {
		case "header":
			extractors = append(extractors, jwtFromHeader(name, cfg.AuthScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(name))
		case "param":
			extractors = append(extractors, jwtFromParam(name))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(name))
		}
	}

	if len(extractors) == 0 {
		extractors = append(extractors, jwtFromHeader("Authorization", cfg.AuthScheme))
	}

	return extractors
}

func extractToken(c router.Context, extractors []extractorFunc) (string, error) {
	for _, extractor := range extractors {
		if token, err := extractor(c); err == nil && token != "" {
			return token, nil
		}
	}
	return "", ErrJWTMissingOrMalformed
}

func jwtFromHeader(header, authScheme string) extractorFunc {
	return func(c router.Context) (string, error) {
		value := c.GetString(header, "")
		if authScheme == "" {
			if value != "" {
				return value, nil
			}
			return "", ErrJWTMissingOrMalformed
		}

		l := len(authScheme)
		if len(value) > l+1 && strings.EqualFold(value[:l], authScheme) {
			return strings.TrimSpace(value[l:]), nil
		}

		return "", ErrJWTMissingOrMalformed
	}
}

func jwtFromQuery(param string) extractorFunc {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

func jwtFromParam(param string) extractorFunc {
	return func(c router.Context) (string, error) {
		token := c.Param(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

func jwtFromCookie(name string) extractorFunc {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name, "")
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// makeFallbackValidator builds a jwt-go based validator from the key
// material in the config. Used when no TokenValidator is provided.
func makeFallbackValidator(cfg Config) TokenValidator {
	kf := cfg.KeyFunc
	if kf == nil {
		kf = makeKeyFunc(cfg)
	}

	claims := cfg.Claims

	return validatorFunc(func(tokenString string) (AuthClaims, error) {
		var token *jwt.Token
		var err error

		if claims != nil {
			token, err = jwt.ParseWithClaims(tokenString, claims, kf)
		} else {
			token, err = jwt.Parse(tokenString, kf)
		}

		if err != nil {
			return nil, err
		}

		if !token.Valid {
			return nil, errors.New("invalid token")
		}

		if ac, ok := token.Claims.(AuthClaims); ok {
			return ac, nil
		}

		if mc, ok := token.Claims.(jwt.MapClaims); ok {
			return mapClaims(mc), nil
		}

		return nil, fmt.Errorf("claims type %T does not implement AuthClaims", token.Claims)
	})
}

type validatorFunc func(tokenString string) (AuthClaims, error)

func (f validatorFunc) Validate(tokenString string) (AuthClaims, error) {
	return f(tokenString)
}

func makeKeyFunc(cfg Config) jwt.Keyfunc {
	if len(cfg.JWKSetURLs) > 0 {
		kf, err := multiKeyfunc(nil, cfg.JWKSetURLs)
		if err != nil {
			panic(fmt.Errorf("failed to create keyfunc from JWKSetURLs: %w", err))
		}
		return kf
	}

	return func(t *jwt.Token) (any, error) {
		if len(cfg.SigningKeys) > 0 {
			kid, ok := t.Header["kid"].(string)
			if !ok {
				return nil, errors.New("missing kid header")
			}
			key, ok := cfg.SigningKeys[kid]
			if !ok {
				return nil, fmt.Errorf("unknown kid %q", kid)
			}
			if key.JWTAlg != "" && t.Method.Alg() != key.JWTAlg {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
			}
			return key.Key, nil
		}

		if cfg.SigningKey.JWTAlg != "" && t.Method.Alg() != cfg.SigningKey.JWTAlg {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
		}

		return cfg.SigningKey.Key, nil
	}
}

func multiKeyfunc(givenKeys map[string]keyfunc.GivenKey, jwkSetURLs []string) (jwt.Keyfunc, error) {
	opts := keyfuncOptions(givenKeys)
	multiple := make(map[string]keyfunc.Options, len(jwkSetURLs))
	for _, url := range jwkSetURLs {
		multiple[url] = opts
	}

	multi, err := keyfunc.GetMultiple(multiple, keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get JWK Set from the given URLs: %w", err)
	}

	return multi.Keyfunc, nil
}

func keyfuncOptions(givenKeys map[string]keyfunc.GivenKey) keyfunc.Options {
	return keyfunc.Options{
		GivenKeys: givenKeys,
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to perform background refresh of JWK Set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
}

// mapClaims adapts jwt.MapClaims to the AuthClaims interface so the
// fallback parser can serve handlers that only need string accessors.
type mapClaims jwt.MapClaims

func (m mapClaims) Subject() string {
	if sub, ok := m["sub"].(string); ok {
		return sub
	}
	return ""
}

func (m mapClaims) Email() string {
	if email, ok := m["email"].(string); ok {
		return email
	}
	return ""
}

func (m mapClaims) Role() string {
	if role, ok := m["role"].(string); ok {
		return role
	}
	return ""
}

func (m mapClaims) HasRole(role string) bool {
	return m.Role() == role
}

// roleRank mirrors the identity package's role hierarchy. Unknown roles
// rank below everything, so they never satisfy a minimum.
var roleRank = map[string]int{
	"USER":  0,
	"ADMIN": 1,
}

func (m mapClaims) IsAtLeast(minRole string) bool {
	current, ok := roleRank[m.Role()]
	if !ok {
		return false
	}
	required, ok := roleRank[minRole]
	if !ok {
		return false
	}
	return current >= required
}
