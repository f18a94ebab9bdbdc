package identity

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var SetRefreshTokenHashSQL = `UPDATE "users" AS "usr"
SET
	"refresh_token_hash" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// RotateRefreshTokenHashSQL is the atomic arbiter for concurrent refresh:
// the write only lands if the row still holds the fingerprint the caller
// verified, so a racing redemption that already rotated it makes this a
// zero-row update.
var RotateRefreshTokenHashSQL = `UPDATE "users" AS "usr"
SET
	"refresh_token_hash" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
)
AND (
	"usr"."refresh_token_hash" = ?
) RETURNING *;`

// ClearRefreshTokenHashSQL only touches rows that hold a fingerprint, so a
// repeated logout is a no-op rather than a pointless write.
var ClearRefreshTokenHashSQL = `UPDATE "users" AS "usr"
SET
	"refresh_token_hash" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
)
AND (
	"usr"."refresh_token_hash" IS NOT NULL
) RETURNING *;`

var UpdateUserRoleSQL = `UPDATE "users" AS "usr"
SET
	"user_role" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type Users interface {
	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	CreateUser(ctx context.Context, user *User) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	SetRefreshTokenHash(ctx context.Context, id uuid.UUID, hash string) error
	SetRefreshTokenHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error
	RotateRefreshTokenHash(ctx context.Context, id uuid.UUID, priorHash, newHash string) error
	RotateRefreshTokenHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, priorHash, newHash string) error
	ClearRefreshTokenHash(ctx context.Context, id uuid.UUID) error
	ClearRefreshTokenHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	UpdateRole(ctx context.Context, id uuid.UUID, role UserRole) (*User, error)
	UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role UserRole) (*User, error)
	ListAll(ctx context.Context) ([]*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users           = (*users)(nil)
	_ CredentialStore = (*users)(nil)
)

// recordNotFound reports a missing row in the vocabulary the rest of the
// package speaks: goerrors.IsNotFound must match it so callers can treat
// absence as a credential failure instead of an outage.
func recordNotFound(meta map[string]any) error {
	return goerrors.New("record not found", goerrors.CategoryNotFound).
		WithTextCode("RECORD_NOT_FOUND").
		WithMetadata(meta)
}

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

// CreateUser satisfies CredentialStore.
func (a *users) CreateUser(ctx context.Context, user *User) (*User, error) {
	return a.Register(ctx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "email already registered").
				WithMetadata(map[string]any{"email": record.Email})
		}
		return nil, err
	}
	return created, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(`?TableAlias."email" = ?`, email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, recordNotFound(map[string]any{"email": email})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(`?TableAlias."id" = ?`, id.String()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, recordNotFound(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) SetRefreshTokenHash(ctx context.Context, id uuid.UUID, hash string) error {
	return a.SetRefreshTokenHashTx(ctx, a.db, id, hash)
}

func (a *users) SetRefreshTokenHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error {
	res, err := a.Repository.RawTx(ctx, tx, SetRefreshTokenHashSQL, hash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return recordNotFound(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) RotateRefreshTokenHash(ctx context.Context, id uuid.UUID, priorHash, newHash string) error {
	return a.RotateRefreshTokenHashTx(ctx, a.db, id, priorHash, newHash)
}

func (a *users) RotateRefreshTokenHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, priorHash, newHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, RotateRefreshTokenHashSQL, newHash, id.String(), priorHash)
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return recordNotFound(map[string]any{
			"id":    id.String(),
			"cause": "fingerprint moved",
		})
	}

	return nil
}

func (a *users) ClearRefreshTokenHash(ctx context.Context, id uuid.UUID) error {
	return a.ClearRefreshTokenHashTx(ctx, a.db, id)
}

func (a *users) ClearRefreshTokenHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	// Zero rows means no session was active; clearing is idempotent.
	_, err := a.Repository.RawTx(ctx, tx, ClearRefreshTokenHashSQL, id.String())
	return err
}

func (a *users) UpdateRole(ctx context.Context, id uuid.UUID, role UserRole) (*User, error) {
	return a.UpdateRoleTx(ctx, a.db, id, role)
}

func (a *users) UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role UserRole) (*User, error) {
	if !IsValidRole(role) {
		return nil, goerrors.New("unknown user role", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"role": role})
	}

	res, err := a.Repository.RawTx(ctx, tx, UpdateUserRoleSQL, role, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, recordNotFound(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func (a *users) ListAll(ctx context.Context) ([]*User, error) {
	var records []*User
	err := a.db.NewSelect().
		Model(&records).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.Role == "" {
		record.Role = RoleUser
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
