package identity

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrNoEmptyString is returned when hashing an empty secret
var ErrNoEmptyString = errors.New("password should not be empty")

// ErrMismatchedHashAndPassword is the error for a failed hash comparison
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

const (
	textCodeEmailTaken         = "EMAIL_TAKEN"
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeAccessDenied       = "ACCESS_DENIED"
	textCodeInvalidToken       = "INVALID_TOKEN"
	textCodeForbidden          = "FORBIDDEN"
)

// ErrEmailTaken is returned by SignUp when the email is already registered.
// Safe to disclose: the conflict itself is the client-facing contract.
var ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(textCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials is returned by SignIn for an unknown email or a wrong
// password. The two causes are deliberately indistinguishable to the caller.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccessDenied is returned by Refresh for any failure: unknown user, no
// active session, or a fingerprint mismatch (stolen, stale, or rotated token).
var ErrAccessDenied = goerrors.New("access denied", goerrors.CategoryAuth).
	WithTextCode(textCodeAccessDenied).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken covers malformed tokens, bad signatures, and expiry as one
// opaque failure kind. Which check failed is only available server-side.
var ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when a verified caller's role is outside the
// operation's permitted set.
var ErrForbidden = goerrors.New("insufficient role", goerrors.CategoryAuthz).
	WithTextCode(textCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsConflictError reports whether err carries the storage layer's
// unique-constraint violation for the email column.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryConflict {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
