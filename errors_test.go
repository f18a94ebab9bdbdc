package identity_test

import (
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestErrorTextCodes(t *testing.T) {
	assert.Equal(t, "EMAIL_TAKEN", identity.ErrEmailTaken.TextCode)
	assert.Equal(t, "INVALID_CREDENTIALS", identity.ErrInvalidCredentials.TextCode)
	assert.Equal(t, "ACCESS_DENIED", identity.ErrAccessDenied.TextCode)
	assert.Equal(t, "INVALID_TOKEN", identity.ErrInvalidToken.TextCode)
	assert.Equal(t, "FORBIDDEN", identity.ErrForbidden.TextCode)
}

func TestErrorCategories(t *testing.T) {
	assert.Equal(t, goerrors.CategoryConflict, identity.ErrEmailTaken.Category)
	assert.Equal(t, goerrors.CategoryAuth, identity.ErrInvalidCredentials.Category)
	assert.Equal(t, goerrors.CategoryAuth, identity.ErrAccessDenied.Category)
	assert.Equal(t, goerrors.CategoryAuth, identity.ErrInvalidToken.Category)
	assert.Equal(t, goerrors.CategoryAuthz, identity.ErrForbidden.Category)
}

func TestIsConflictError(t *testing.T) {
	assert.False(t, identity.IsConflictError(nil))
	assert.False(t, identity.IsConflictError(errors.New("some other error")))

	assert.True(t, identity.IsConflictError(
		goerrors.New("email exists", goerrors.CategoryConflict),
	))

	// Raw driver errors from sqlite and postgres both count.
	assert.True(t, identity.IsConflictError(
		errors.New("UNIQUE constraint failed: users.email"),
	))
	assert.True(t, identity.IsConflictError(
		errors.New(`duplicate key value violates unique constraint "users_email_idx"`),
	))
}

func TestIsTokenExpiredError(t *testing.T) {
	assert.False(t, identity.IsTokenExpiredError(nil))
	assert.True(t, identity.IsTokenExpiredError(errors.New("token is expired")))
	assert.False(t, identity.IsTokenExpiredError(errors.New("token is malformed")))
}

func TestIsMalformedError(t *testing.T) {
	assert.False(t, identity.IsMalformedError(nil))
	assert.True(t, identity.IsMalformedError(errors.New("token is malformed")))
	assert.True(t, identity.IsMalformedError(errors.New("missing or malformed JWT")))
	assert.False(t, identity.IsMalformedError(errors.New("token is expired")))
}
