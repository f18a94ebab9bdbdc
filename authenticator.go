package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenTypeBearer is the only token transport this package issues.
const TokenTypeBearer = "Bearer"

// TokenPair is the result of every successful SignUp, SignIn, and Refresh.
// Neither token is ever persisted verbatim; only the refresh token's
// fingerprint reaches storage.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
}

// SignUpInput carries the fields accepted at registration. Role is not an
// input: every sign-up creates a USER.
type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

type Auther struct {
	store           CredentialStore
	access          TokenService
	refresh         TokenService
	logger          Logger
	activitySink    ActivitySink
	claimsDecorator ClaimsDecorator
}

// NewAuthenticator returns a new Authenticator backed by the given store.
// Access and refresh tokens are signed by independent services built from
// the two secret/TTL pairs in opts.
func NewAuthenticator(store CredentialStore, opts Config) *Auther {
	return &Auther{
		store: store,
		access: NewTokenService(
			[]byte(opts.GetAccessSigningKey()),
			opts.GetAccessTTL(),
			opts.GetIssuer(),
			opts.GetAudience(),
			defLogger{},
		),
		refresh: NewTokenService(
			[]byte(opts.GetRefreshSigningKey()),
			opts.GetRefreshTTL(),
			opts.GetIssuer(),
			opts.GetAudience(),
			defLogger{},
		),
		logger:          defLogger{},
		activitySink:    noopActivitySink{},
		claimsDecorator: noopClaimsDecorator{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching JWTs.
func (s *Auther) WithClaimsDecorator(decorator ClaimsDecorator) *Auther {
	s.claimsDecorator = normalizeClaimsDecorator(decorator)
	return s
}

// AccessTokenService returns the service that signs and validates access tokens.
func (s *Auther) AccessTokenService() TokenService {
	return s.access
}

// RefreshTokenService returns the service that signs and validates refresh tokens.
func (s *Auther) RefreshTokenService() TokenService {
	return s.refresh
}

// SignUp registers a new USER account and immediately establishes a session:
// the returned pair's refresh fingerprint is persisted before returning.
func (s *Auther) SignUp(ctx context.Context, input SignUpInput) (*TokenPair, error) {
	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	user, err := s.store.CreateUser(ctx, &User{
		Email:        input.Email,
		Name:         input.Name,
		Phone:        input.Phone,
		Role:         RoleUser,
		PasswordHash: hash,
	})
	if err != nil {
		if IsConflictError(err) {
			s.logger.Info("SignUp rejected duplicate email", "email", input.Email)
			return nil, emailTaken(err)
		}
		s.logger.Error("SignUp create user error", "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user")
	}

	pair, err := s.establishSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventSignUp, user.ID.String(), map[string]any{
		"email": user.Email,
	})

	return pair, nil
}

// SignIn verifies credentials and mints a fresh pair, overwriting any prior
// session. The password hash is compared even when the email is unknown so
// the two failure causes are indistinguishable by timing.
func (s *Auther) SignIn(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil && !goerrors.IsNotFound(err) {
		s.logger.Error("SignIn lookup error", "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during sign in")
	}

	var storedHash *string
	if user != nil {
		storedHash = &user.PasswordHash
	}

	if !VerifyPassword(storedHash, password) {
		cause := "bad_password"
		if user == nil {
			cause = "unknown_email"
		}
		s.emitAuthEvent(ctx, ActivityEventSignInFailure, "", map[string]any{
			"email": email,
			"cause": cause,
		})
		return nil, ErrInvalidCredentials
	}

	pair, err := s.establishSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventSignInSuccess, user.ID.String(), map[string]any{
		"email": email,
	})

	return pair, nil
}

// Refresh redeems a refresh token for a new pair, rotating the stored
// fingerprint. The presented token is single-use: the rotation is a
// conditional update keyed on the prior fingerprint, so of two racing
// redemptions exactly one wins and the other is denied.
func (s *Auther) Refresh(ctx context.Context, userID, refreshToken string) (*TokenPair, error) {
	deny := func(cause string, err error) (*TokenPair, error) {
		meta := map[string]any{"cause": cause}
		if err != nil {
			meta["error"] = err.Error()
		}
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, userID, meta)
		return nil, accessDenied(err)
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return deny("bad_user_id", err)
	}

	user, err := s.store.GetByID(ctx, uid)
	if err != nil && !goerrors.IsNotFound(err) {
		s.logger.Error("Refresh lookup error", "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during refresh")
	}

	var priorHash *string
	if user != nil {
		priorHash = user.RefreshTokenHash
	}

	// The fingerprint comparison runs for missing users and empty slots too,
	// keeping the deny path on the same cost as a genuine mismatch.
	if !VerifyFingerprint(priorHash, refreshToken) {
		switch {
		case user == nil:
			return deny("unknown_user", nil)
		case priorHash == nil:
			return deny("no_active_session", nil)
		default:
			return deny("fingerprint_mismatch", nil)
		}
	}

	pair, err := s.signTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	fingerprint, err := HashFingerprint(pair.RefreshToken)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to fingerprint refresh token")
	}

	if err := s.store.RotateRefreshTokenHash(ctx, user.ID, *priorHash, fingerprint); err != nil {
		if goerrors.IsNotFound(err) {
			// Another redemption moved the fingerprint between our check and
			// this write; this attempt lost the race.
			return deny("rotation_lost_race", nil)
		}
		s.logger.Error("Refresh rotate fingerprint error", "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate refresh fingerprint")
	}

	s.emitAuthEvent(ctx, ActivityEventRefreshSuccess, userID, nil)

	return pair, nil
}

// Logout revokes the user's session by clearing the stored fingerprint.
// Idempotent: logging out an already logged-out user succeeds silently, and
// no row is written unless a fingerprint is actually set.
func (s *Auther) Logout(ctx context.Context, userID string) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id")
	}

	if err := s.store.ClearRefreshTokenHash(ctx, uid); err != nil {
		s.logger.Error("Logout clear fingerprint error", "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear refresh fingerprint")
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, userID, nil)

	return nil
}

// establishSession mints a pair and unconditionally overwrites the stored
// fingerprint: sign-up and sign-in both replace whatever session existed.
func (s *Auther) establishSession(ctx context.Context, user *User) (*TokenPair, error) {
	pair, err := s.signTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	fingerprint, err := HashFingerprint(pair.RefreshToken)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to fingerprint refresh token")
	}

	if err := s.store.SetRefreshTokenHash(ctx, user.ID, fingerprint); err != nil {
		s.logger.Error("establishSession persist fingerprint error", "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist refresh fingerprint")
	}

	return pair, nil
}

// signTokens mints one TokenPair from the user's claims. Pure apart from
// clock reads: no persistence happens here, and the two signatures have no
// ordering dependency.
func (s *Auther) signTokens(ctx context.Context, user *User) (*TokenPair, error) {
	accessToken, err := s.generateToken(ctx, user, s.access)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateToken(ctx, user, s.refresh)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    TokenTypeBearer,
	}, nil
}

func (s *Auther) generateToken(ctx context.Context, user *User, svc TokenService) (string, error) {
	claims := svc.NewClaims(NewIdentityFromUser(user))
	snapshot := captureImmutableClaims(claims)

	decorator := normalizeClaimsDecorator(s.claimsDecorator)
	if err := decorator.Decorate(ctx, user, claims); err != nil {
		s.logger.Error("claims decorator failed", "error", err)
		return "", err
	}

	if err := snapshot.validate(claims); err != nil {
		s.logger.Error("claims decorator mutated immutable claims", "error", err)
		return "", err
	}

	return svc.SignClaims(claims)
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func emailTaken(cause error) error {
	clone := ErrEmailTaken.Clone()
	if clone == nil {
		return ErrEmailTaken
	}
	clone.Source = cause
	return clone
}

func accessDenied(cause error) error {
	clone := ErrAccessDenied.Clone()
	if clone == nil {
		return ErrAccessDenied
	}
	clone.Source = cause
	return clone
}
