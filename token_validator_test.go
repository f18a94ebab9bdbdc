package identity_test

import (
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenValidatorFunc(t *testing.T) {
	svc := newTestTokenService("validator-key", time.Hour)

	who := TestIdentity{
		id:    uuid.New().String(),
		email: "test@example.com",
		role:  "USER",
	}

	token, err := svc.Generate(who)
	require.NoError(t, err)

	validator := identity.TokenValidatorFunc(svc.Validate)

	claims, err := validator.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, who.ID(), claims.Subject())

	t.Run("nil func rejects every token", func(t *testing.T) {
		var nilValidator identity.TokenValidatorFunc

		claims, err := nilValidator.Validate(token)
		assert.Nil(t, claims)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})
}

func TestMultiTokenValidatorRotatedSecrets(t *testing.T) {
	// Two live secrets, as during a signing key rotation window.
	previous := newTestTokenService("old-signing-key", time.Hour)
	current := newTestTokenService("new-signing-key", time.Hour)

	validator := identity.NewMultiTokenValidator(nil, previous, current)

	who := TestIdentity{
		id:    uuid.New().String(),
		email: "test@example.com",
		role:  "ADMIN",
	}

	oldToken, err := previous.Generate(who)
	require.NoError(t, err)
	newToken, err := current.Generate(who)
	require.NoError(t, err)

	// Tokens signed under either secret validate.
	claims, err := validator.Validate(oldToken)
	require.NoError(t, err)
	assert.Equal(t, who.ID(), claims.Subject())

	claims, err = validator.Validate(newToken)
	require.NoError(t, err)
	assert.Equal(t, who.ID(), claims.Subject())

	t.Run("token signed under a retired secret is rejected", func(t *testing.T) {
		retired := newTestTokenService("retired-signing-key", time.Hour)
		token, err := retired.Generate(who)
		require.NoError(t, err)

		claims, err := validator.Validate(token)
		assert.Nil(t, claims)
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryAuth, richErr.Category)
	})

	t.Run("garbage input is rejected", func(t *testing.T) {
		claims, err := validator.Validate("not-a-jwt")
		assert.Nil(t, claims)
		assert.Error(t, err)
	})

	t.Run("empty validator set falls back to the generic denial", func(t *testing.T) {
		empty := identity.NewMultiTokenValidator(nil, nil)

		claims, err := empty.Validate(newToken)
		assert.Nil(t, claims)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})
}
