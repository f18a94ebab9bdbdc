package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logger takes a message followed by alternating key/value pairs, the way
// go-logger's structured loggers do.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Authenticator holds the credential and session-renewal operations
type Authenticator interface {
	SignUp(ctx context.Context, input SignUpInput) (*TokenPair, error)
	SignIn(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, userID, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, userID string) error
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Email() string
	Role() string
}

// Config holds auth options
type Config interface {
	GetAccessSigningKey() string
	GetAccessTTL() time.Duration
	GetRefreshSigningKey() string
	GetRefreshTTL() time.Duration
	GetSigningMethod() string
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
}

// CredentialStore ensure we have a store to persist users and their
// refresh-token fingerprints. The store is the sole owner of User rows;
// the authenticator never mutates anything but the fingerprint slot.
type CredentialStore interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	SetRefreshTokenHash(ctx context.Context, id uuid.UUID, hash string) error
	RotateRefreshTokenHash(ctx context.Context, id uuid.UUID, priorHash, newHash string) error
	ClearRefreshTokenHash(ctx context.Context, id uuid.UUID) error
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] IDENTITY " + formatLogLine(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] IDENTITY " + formatLogLine(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] IDENTITY " + formatLogLine(msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] IDENTITY " + formatLogLine(msg, args))
}

// formatLogLine renders alternating key/value pairs as "msg key=value". A
// trailing key without a value is printed with a bang so the omission shows.
func formatLogLine(msg string, args []any) string {
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			msg += fmt.Sprintf(" %v=%v", args[i], args[i+1])
		} else {
			msg += fmt.Sprintf(" %v=!MISSING", args[i])
		}
	}
	return msg
}
