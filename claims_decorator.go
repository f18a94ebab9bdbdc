package identity

import "context"

// ClaimsDecorator can mutate allowed JWT claim extensions before a token is
// signed. Implementations may only touch the Metadata extension field; the
// identity claims (sub, email, role) and the registered time claims are
// snapshotted and a mutation aborts issuance.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, user *User, claims *JWTClaims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(ctx context.Context, user *User, claims *JWTClaims) error

// Decorate satisfies the ClaimsDecorator interface.
func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, user *User, claims *JWTClaims) error {
	if f == nil {
		return nil
	}
	return f(ctx, user, claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(context.Context, *User, *JWTClaims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}
