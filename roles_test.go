package identity_test

import (
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestIsValidRole(t *testing.T) {
	assert.True(t, identity.IsValidRole(identity.RoleUser))
	assert.True(t, identity.IsValidRole(identity.RoleAdmin))
	assert.False(t, identity.IsValidRole("SUPERUSER"))
	assert.False(t, identity.IsValidRole(""))
	assert.False(t, identity.IsValidRole("admin"))
}

func TestIsAtLeast(t *testing.T) {
	assert.True(t, identity.IsAtLeast(identity.RoleAdmin, identity.RoleUser))
	assert.True(t, identity.IsAtLeast(identity.RoleAdmin, identity.RoleAdmin))
	assert.True(t, identity.IsAtLeast(identity.RoleUser, identity.RoleUser))
	assert.False(t, identity.IsAtLeast(identity.RoleUser, identity.RoleAdmin))

	// Unknown roles never satisfy any minimum.
	assert.False(t, identity.IsAtLeast("SUPERUSER", identity.RoleUser))
	assert.False(t, identity.IsAtLeast(identity.RoleAdmin, "SUPERUSER"))
}

func TestParseRole(t *testing.T) {
	role, ok := identity.ParseRole("ADMIN")
	assert.True(t, ok)
	assert.Equal(t, identity.RoleAdmin, role)

	_, ok = identity.ParseRole("wizard")
	assert.False(t, ok)
}

func TestGetAllRoles(t *testing.T) {
	roles := identity.GetAllRoles()
	assert.Equal(t, []identity.UserRole{identity.RoleUser, identity.RoleAdmin}, roles)
}

func TestRoleAllowed(t *testing.T) {
	// Empty set means any authenticated caller.
	assert.True(t, identity.RoleAllowed(identity.RoleUser, nil))
	assert.True(t, identity.RoleAllowed(identity.RoleAdmin, []identity.UserRole{}))

	admins := []identity.UserRole{identity.RoleAdmin}
	assert.True(t, identity.RoleAllowed(identity.RoleAdmin, admins))
	assert.False(t, identity.RoleAllowed(identity.RoleUser, admins))
}
