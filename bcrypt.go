package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// passwordHashCost is deliberately high: passwords are low entropy.
	passwordHashCost = 14
	// fingerprintHashCost can be lower: refresh tokens are signed JWTs,
	// not guessable secrets, and fingerprints are checked on every renewal.
	fingerprintHashCost = bcrypt.DefaultCost
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// VerifyPassword compares a candidate password against a stored hash in time
// independent of whether a hash exists. Callers MUST invoke it even when the
// user lookup failed, passing nil, so an unknown email costs the same as a
// wrong password. A nil hash is compared against a throwaway hash and is
// always a mismatch.
func VerifyPassword(hash *string, candidate string) bool {
	stored := dummyPasswordHash()
	known := false
	if hash != nil && *hash != "" {
		stored = *hash
		known = true
	}

	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate))
	return known && err == nil
}

// HashFingerprint produces the one-way fingerprint stored in place of a
// refresh token. Tokens are digested before bcrypt because encoded JWTs
// exceed bcrypt's 72 byte input limit.
func HashFingerprint(token string) (string, error) {
	if token == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword(digestToken(token), fingerprintHashCost)
	return string(h), err
}

// VerifyFingerprint checks a presented refresh token against a stored
// fingerprint using the same always-compare discipline as VerifyPassword.
func VerifyFingerprint(hash *string, token string) bool {
	stored := dummyFingerprintHash()
	known := false
	if hash != nil && *hash != "" {
		stored = *hash
		known = true
	}

	err := bcrypt.CompareHashAndPassword([]byte(stored), digestToken(token))
	return known && err == nil
}

func digestToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(sum)))
	base64.RawStdEncoding.Encode(out, sum[:])
	return out
}

var (
	dummyOnce        sync.Once
	dummyPassword    string
	dummyFingerprint string
)

// The dummy hashes keep the nil path on the same bcrypt cost as the real
// path. They are minted once, on first use.
func initDummyHashes() {
	dummyOnce.Do(func() {
		p, err := bcrypt.GenerateFromPassword([]byte("identity.dummy.password"), passwordHashCost)
		if err != nil {
			panic(err)
		}
		f, err := bcrypt.GenerateFromPassword([]byte("identity.dummy.fingerprint"), fingerprintHashCost)
		if err != nil {
			panic(err)
		}
		dummyPassword, dummyFingerprint = string(p), string(f)
	})
}

func dummyPasswordHash() string {
	initDummyHashes()
	return dummyPassword
}

func dummyFingerprintHash() string {
	initDummyHashes()
	return dummyFingerprint
}
