package identity_test

import (
	"strings"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := identity.HashPassword("password123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "password123", hash)

	assert.NoError(t, identity.ComparePasswordAndHash("password123", hash))
	assert.ErrorIs(t,
		identity.ComparePasswordAndHash("wrong-password", hash),
		identity.ErrMismatchedHashAndPassword,
	)

	_, err = identity.HashPassword("")
	assert.ErrorIs(t, err, identity.ErrNoEmptyString)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := identity.HashPassword("password123")
	require.NoError(t, err)

	assert.True(t, identity.VerifyPassword(&hash, "password123"))
	assert.False(t, identity.VerifyPassword(&hash, "wrong-password"))

	// A missing hash must compare and fail, never short-circuit to true.
	assert.False(t, identity.VerifyPassword(nil, "password123"))

	empty := ""
	assert.False(t, identity.VerifyPassword(&empty, "password123"))

	// The dummy comparison input must not verify against the nil path.
	assert.False(t, identity.VerifyPassword(nil, "identity.dummy.password"))
}

func TestFingerprintRoundTrip(t *testing.T) {
	// Encoded JWTs are far beyond bcrypt's 72 byte input limit; the
	// digest step has to make length irrelevant.
	token := strings.Repeat("header.payload.signature", 20)

	fingerprint, err := identity.HashFingerprint(token)
	require.NoError(t, err)
	assert.NotEmpty(t, fingerprint)

	assert.True(t, identity.VerifyFingerprint(&fingerprint, token))
	assert.False(t, identity.VerifyFingerprint(&fingerprint, token+"tampered"))
	assert.False(t, identity.VerifyFingerprint(nil, token))

	empty := ""
	assert.False(t, identity.VerifyFingerprint(&empty, token))
}

func TestHashFingerprintRejectsEmptyToken(t *testing.T) {
	_, err := identity.HashFingerprint("")
	assert.ErrorIs(t, err, identity.ErrNoEmptyString)
}

func TestFingerprintsAreSalted(t *testing.T) {
	a, err := identity.HashFingerprint("same-token")
	require.NoError(t, err)
	b, err := identity.HashFingerprint("same-token")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, identity.VerifyFingerprint(&a, "same-token"))
	assert.True(t, identity.VerifyFingerprint(&b, "same-token"))
}
