package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenService signs and validates one kind of token. Access and refresh
// tokens get independent instances so the two secrets and TTLs are never
// interchangeable: a refresh token presented to the access validator fails
// the signature check, and vice versa.
type TokenService interface {
	Generate(identity Identity) (string, error)
	NewClaims(identity Identity) *JWTClaims
	SignClaims(claims *JWTClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, ttl time.Duration, issuer string, audience jwt.ClaimStrings, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		ttl:        ttl,
		issuer:     issuer,
		audience:   audience,
		logger:     logger,
	}
}

// NewClaims builds the claim set for an identity using this service's TTL.
// Both token kinds carry the same identity claims; only iat/exp/jti differ.
func (ts *TokenServiceImpl) NewClaims(identity Identity) *JWTClaims {
	now := time.Now()

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		UserEmail: identity.Email(),
		UserRole:  identity.Role(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	return claims
}

// Generate creates a signed token for the identity
func (ts *TokenServiceImpl) Generate(identity Identity) (string, error) {
	return ts.SignClaims(ts.NewClaims(identity))
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims.
// Malformed tokens, bad signatures, and expired tokens all surface as
// ErrInvalidToken; the distinction is logged, never returned.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			ts.logger.Debug("TokenService validate rejected expired token")
		} else {
			ts.logger.Debug("TokenService validate rejected token", "error", err)
		}
		return nil, invalidToken(err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, invalidToken(ErrUnableToMapClaims)
}

// TTL exposes the configured token lifetime.
func (ts *TokenServiceImpl) TTL() time.Duration {
	return ts.ttl
}

func invalidToken(cause error) error {
	clone := ErrInvalidToken.Clone()
	if clone == nil {
		return ErrInvalidToken
	}
	clone.Source = cause
	return clone
}
