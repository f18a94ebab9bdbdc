package identity_test

import (
	"context"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) (*identity.Auther, *identity.Guard) {
	t.Helper()

	auther := identity.NewAuthenticator(new(MockCredentialStore), newMockConfig())
	return auther, identity.NewGuard(auther, newMockConfig())
}

func guardPassthrough(called *bool) router.HandlerFunc {
	return func(ctx router.Context) error {
		*called = true
		return nil
	}
}

func TestGuardPublicRouteSkipsVerification(t *testing.T) {
	_, guard := newTestGuard(t)

	nextCalled := false
	handler := guard.Middleware(identity.RouteDescriptor{Public: true})(guardPassthrough(&nextCalled))

	// No token, no expectations: the handler runs untouched.
	ctx := router.NewMockContext()
	require.NoError(t, handler(ctx))
	assert.True(t, nextCalled)
}

func TestGuardAccessRoute(t *testing.T) {
	auther, guard := newTestGuard(t)

	who := TestIdentity{
		id:    uuid.New().String(),
		email: "test@example.com",
		role:  string(identity.RoleUser),
	}

	accessToken, err := auther.AccessTokenService().Generate(who)
	require.NoError(t, err)

	handler := guard.Middleware(identity.RouteDescriptor{})(guardPassthrough(new(bool)))

	t.Run("valid access token passes", func(t *testing.T) {
		nextCalled := false
		handler := guard.Middleware(identity.RouteDescriptor{})(guardPassthrough(&nextCalled))

		ctx := router.NewMockContext()
		ctx.HeadersM["Authorization"] = "Bearer " + accessToken
		ctx.On("GetString", "Authorization", "").Return("Bearer " + accessToken)
		ctx.On("Locals", "user", mock.Anything).Return(nil)
		ctx.On("Context").Return(context.Background())
		ctx.On("SetContext", mock.Anything).Return()

		require.NoError(t, handler(ctx))
		assert.True(t, nextCalled)
	})

	t.Run("missing token is rendered as 401", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.On("GetString", "Authorization", "").Return("")
		ctx.On("JSON", 401, mock.Anything).Return(nil)

		require.NoError(t, handler(ctx))
		ctx.AssertCalled(t, "JSON", 401, mock.Anything)
	})

	t.Run("refresh token is rejected on an access route", func(t *testing.T) {
		refreshToken, err := auther.RefreshTokenService().Generate(who)
		require.NoError(t, err)

		ctx := router.NewMockContext()
		ctx.HeadersM["Authorization"] = "Bearer " + refreshToken
		ctx.On("GetString", "Authorization", "").Return("Bearer " + refreshToken)
		ctx.On("JSON", 401, mock.Anything).Return(nil)

		require.NoError(t, handler(ctx))
		ctx.AssertCalled(t, "JSON", 401, mock.Anything)
	})
}

func TestGuardRefreshRouteStashesRawToken(t *testing.T) {
	auther, guard := newTestGuard(t)

	who := TestIdentity{
		id:    uuid.New().String(),
		email: "test@example.com",
		role:  string(identity.RoleUser),
	}

	refreshToken, err := auther.RefreshTokenService().Generate(who)
	require.NoError(t, err)

	nextCalled := false
	handler := guard.Middleware(identity.RouteDescriptor{
		TokenKind: identity.TokenKindRefresh,
	})(guardPassthrough(&nextCalled))

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer " + refreshToken
	ctx.On("GetString", "Authorization", "").Return("Bearer " + refreshToken)
	ctx.On("Locals", "user", mock.Anything).Return(nil)
	ctx.On("Locals", identity.RefreshTokenLocalsKey, refreshToken).Return(nil)
	ctx.On("Context").Return(context.Background())
	ctx.On("SetContext", mock.Anything).Return()

	require.NoError(t, handler(ctx))
	assert.True(t, nextCalled)
	ctx.AssertCalled(t, "Locals", identity.RefreshTokenLocalsKey, refreshToken)
}

func TestGuardRoleRestriction(t *testing.T) {
	auther, guard := newTestGuard(t)

	handler := guard.Middleware(identity.RouteDescriptor{
		Roles: []identity.UserRole{identity.RoleAdmin},
	})(guardPassthrough(new(bool)))

	t.Run("admin passes", func(t *testing.T) {
		token, err := auther.AccessTokenService().Generate(TestIdentity{
			id:    uuid.New().String(),
			email: "admin@example.com",
			role:  string(identity.RoleAdmin),
		})
		require.NoError(t, err)

		nextCalled := false
		handler := guard.Middleware(identity.RouteDescriptor{
			Roles: []identity.UserRole{identity.RoleAdmin},
		})(guardPassthrough(&nextCalled))

		ctx := router.NewMockContext()
		ctx.HeadersM["Authorization"] = "Bearer " + token
		ctx.On("GetString", "Authorization", "").Return("Bearer " + token)
		ctx.On("Locals", "user", mock.Anything).Return(nil)
		ctx.On("Context").Return(context.Background())
		ctx.On("SetContext", mock.Anything).Return()

		require.NoError(t, handler(ctx))
		assert.True(t, nextCalled)
	})

	t.Run("non admin is rendered as 403", func(t *testing.T) {
		token, err := auther.AccessTokenService().Generate(TestIdentity{
			id:    uuid.New().String(),
			email: "user@example.com",
			role:  string(identity.RoleUser),
		})
		require.NoError(t, err)

		ctx := router.NewMockContext()
		ctx.HeadersM["Authorization"] = "Bearer " + token
		ctx.On("GetString", "Authorization", "").Return("Bearer " + token)
		ctx.On("JSON", 403, mock.Anything).Return(nil)

		require.NoError(t, handler(ctx))
		ctx.AssertCalled(t, "JSON", 403, mock.Anything)
	})
}

func TestDefaultRouteDescriptors(t *testing.T) {
	descriptors := identity.DefaultRouteDescriptors()

	assert.True(t, descriptors[identity.RouteSignUp].Public)
	assert.True(t, descriptors[identity.RouteSignIn].Public)

	refresh := descriptors[identity.RouteRefresh]
	assert.False(t, refresh.Public)
	assert.Equal(t, identity.TokenKindRefresh, refresh.TokenKind)

	logout := descriptors[identity.RouteLogout]
	assert.False(t, logout.Public)
	assert.Empty(t, logout.Roles)

	assert.Equal(t, []identity.UserRole{identity.RoleAdmin}, descriptors[identity.RouteUsersList].Roles)
	assert.Equal(t, []identity.UserRole{identity.RoleAdmin}, descriptors[identity.RouteUserSetRole].Roles)
}
