package identity_test

import (
	"context"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockCredentialStore implements identity.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) CreateUser(ctx context.Context, user *identity.User) (*identity.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockCredentialStore) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockCredentialStore) GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockCredentialStore) SetRefreshTokenHash(ctx context.Context, id uuid.UUID, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *MockCredentialStore) RotateRefreshTokenHash(ctx context.Context, id uuid.UUID, priorHash, newHash string) error {
	args := m.Called(ctx, id, priorHash, newHash)
	return args.Error(0)
}

func (m *MockCredentialStore) ClearRefreshTokenHash(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockConfig implements identity.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetAccessSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAccessTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetRefreshSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetRefreshTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetSigningMethod() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetContextKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetTokenLookup() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAuthScheme() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAudience() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func newMockConfig() *MockConfig {
	mockConfig := new(MockConfig)
	mockConfig.On("GetAccessSigningKey").Return("access-test-secret")
	mockConfig.On("GetAccessTTL").Return(15 * time.Minute)
	mockConfig.On("GetRefreshSigningKey").Return("refresh-test-secret")
	mockConfig.On("GetRefreshTTL").Return(7 * 24 * time.Hour)
	mockConfig.On("GetSigningMethod").Return("HS256")
	mockConfig.On("GetContextKey").Return("user")
	mockConfig.On("GetTokenLookup").Return("header:Authorization")
	mockConfig.On("GetAuthScheme").Return("Bearer")
	mockConfig.On("GetIssuer").Return("test-issuer")
	mockConfig.On("GetAudience").Return([]string{"test:audience"})
	return mockConfig
}

// capturingSink collects activity events for assertions
type capturingSink struct {
	events []identity.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt identity.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) lastEvent() *identity.ActivityEvent {
	if len(c.events) == 0 {
		return nil
	}
	return &c.events[len(c.events)-1]
}
