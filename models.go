package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is the default role assigned on sign-up
	RoleUser UserRole = "USER"
	// RoleAdmin can list every account and change roles
	RoleAdmin UserRole = "ADMIN"
)

// User is the user model. RefreshTokenHash holds the fingerprint of the one
// currently redeemable refresh token; nil means no active session.
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role             UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	Name             string     `bun:"name" json:"name,omitempty"`
	Email            string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone            string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash     string     `bun:"password_hash" json:"-"`
	RefreshTokenHash *string    `bun:"refresh_token_hash,nullzero" json:"-"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt        *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasActiveSession reports whether the user holds a redeemable refresh token.
func (u *User) HasActiveSession() bool {
	return u != nil && u.RefreshTokenHash != nil && *u.RefreshTokenHash != ""
}
