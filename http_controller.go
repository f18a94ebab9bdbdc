package identity

import (
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Put(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// RegisterAuthRoutes wires the JSON auth surface into the given router,
// guarding each route per its descriptor.
func RegisterAuthRoutes(app RouteRegistrar, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)
	guard := controller.Guard
	descriptors := controller.Descriptors

	app.Post(controller.Routes.SignUp,
		controller.SignUp,
		guard.Middleware(descriptors[RouteSignUp]),
	).SetName(RouteSignUp)

	app.Post(controller.Routes.SignIn,
		controller.SignIn,
		guard.Middleware(descriptors[RouteSignIn]),
	).SetName(RouteSignIn)

	app.Get(controller.Routes.Refresh,
		controller.Refresh,
		guard.Middleware(descriptors[RouteRefresh]),
	).SetName(RouteRefresh)

	app.Get(controller.Routes.Logout,
		controller.Logout,
		guard.Middleware(descriptors[RouteLogout]),
	).SetName(RouteLogout)

	app.Get(controller.Routes.UsersMe,
		controller.Me,
		guard.Middleware(descriptors[RouteUsersMe]),
	).SetName(RouteUsersMe)

	app.Get(controller.Routes.UsersList,
		controller.ListUsers,
		guard.Middleware(descriptors[RouteUsersList]),
	).SetName(RouteUsersList)

	app.Put(fmt.Sprintf("%s/:id/role", controller.Routes.UsersList),
		controller.SetRole,
		guard.Middleware(descriptors[RouteUserSetRole]),
	).SetName(RouteUserSetRole)

	return controller
}

// AuthControllerRoutes holds the paths the controller mounts on.
type AuthControllerRoutes struct {
	SignUp    string
	SignIn    string
	Refresh   string
	Logout    string
	UsersMe   string
	UsersList string
}

type AuthController struct {
	Debug       bool
	Logger      Logger
	Auther      *Auther
	Users       Users
	Guard       *Guard
	Routes      *AuthControllerRoutes
	Descriptors map[string]RouteDescriptor
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			SignUp:    "/auth/signup",
			SignIn:    "/auth/signin",
			Refresh:   "/auth/refresh",
			Logout:    "/auth/logout",
			UsersMe:   "/users/me",
			UsersList: "/users",
		},
		Descriptors: DefaultRouteDescriptors(),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Users == nil {
		panic("Missing Users repository in auth controller...")
	}

	if c.Guard == nil {
		panic("Missing Guard in auth controller...")
	}

	return c
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug toggles payload dumps on bound requests.
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// WithAuther sets the authenticator powering the auth routes.
func WithAuther(auther *Auther) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

// WithUsersRepo sets the repository backing the user routes.
func WithUsersRepo(users Users) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Users = users
		return c
	}
}

// WithGuard sets the guard used to protect routes.
func WithGuard(guard *Guard) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Guard = guard
		return c
	}
}

// WithRouteDescriptors overrides protection descriptors per route name.
func WithRouteDescriptors(descriptors map[string]RouteDescriptor) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		base := c.Descriptors
		for name, desc := range descriptors {
			base[name] = desc
		}
		return c
	}
}

// SignUpRequest payload
type SignUpRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
	Name     string `form:"name" json:"name"`
	Phone    string `form:"phone_number" json:"phone_number"`
}

// Validate will run validation rules
func (r SignUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.Name, validation.Length(1, 200)),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
	)
}

func (a *AuthController) SignUp(ctx router.Context) error {
	payload := new(SignUpRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("sign up parse payload", "error", err)
		return RenderError(ctx, badRequest(err))
	}

	if err := payload.Validate(); err != nil {
		return RenderError(ctx, validationError(err))
	}

	if a.Debug {
		fmt.Println("======= AUTH SIGNUP ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==========================")
	}

	pair, err := a.Auther.SignUp(ctx.Context(), SignUpInput{
		Email:    payload.Email,
		Password: payload.Password,
		Name:     payload.Name,
		Phone:    payload.Phone,
	})
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, pair)
}

// SignInRequest payload
type SignInRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r SignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) SignIn(ctx router.Context) error {
	payload := new(SignInRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("sign in parse payload", "error", err)
		return RenderError(ctx, badRequest(err))
	}

	if err := payload.Validate(); err != nil {
		return RenderError(ctx, validationError(err))
	}

	pair, err := a.Auther.SignIn(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, pair)
}

// Refresh redeems the verified refresh token for a fresh pair. The guard
// already validated the token; the handler replays it against the stored
// fingerprint through the authenticator.
func (a *AuthController) Refresh(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Guard.ContextKey())
	if !ok {
		return RenderError(ctx, ErrInvalidToken)
	}

	raw, ok := GetRouterRefreshToken(ctx, "")
	if !ok {
		return RenderError(ctx, ErrInvalidToken)
	}

	pair, err := a.Auther.Refresh(ctx.Context(), claims.Subject(), raw)
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, pair)
}

func (a *AuthController) Logout(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Guard.ContextKey())
	if !ok {
		return RenderError(ctx, ErrInvalidToken)
	}

	if err := a.Auther.Logout(ctx.Context(), claims.Subject()); err != nil {
		return RenderError(ctx, err)
	}

	return ctx.Status(http.StatusNoContent).SendString("")
}

// Me returns the authenticated user's record.
func (a *AuthController) Me(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.Guard.ContextKey())
	if !ok {
		return RenderError(ctx, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.Subject())
	if err != nil {
		return RenderError(ctx, badRequest(err))
	}

	user, err := a.Users.GetByID(ctx.Context(), uid)
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, user)
}

// ListUsers returns every registered user. Admin only.
func (a *AuthController) ListUsers(ctx router.Context) error {
	users, err := a.Users.ListAll(ctx.Context())
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, users)
}

// RoleUpdateRequest payload
type RoleUpdateRequest struct {
	Role string `form:"role" json:"role"`
}

// Validate will run validation rules
func (r RoleUpdateRequest) Validate() error {
	roles := GetAllRoles()
	permitted := make([]any, 0, len(roles))
	for _, role := range roles {
		permitted = append(permitted, string(role))
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(permitted...)),
	)
}

// SetRole updates another user's role. Admin only.
func (a *AuthController) SetRole(ctx router.Context) error {
	uid, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return RenderError(ctx, badRequest(err))
	}

	payload := new(RoleUpdateRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("set role parse payload", "error", err)
		return RenderError(ctx, badRequest(err))
	}

	if err := payload.Validate(); err != nil {
		return RenderError(ctx, validationError(err))
	}

	user, err := a.Users.UpdateRole(ctx.Context(), uid, UserRole(payload.Role))
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, user)
}

// RenderError writes a JSON error envelope with a status derived from
// the error's category or explicit code.
func RenderError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	body := map[string]any{
		"message": richErr.Message,
	}

	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	if len(richErr.Metadata) > 0 {
		body["details"] = richErr.Metadata
	}

	return ctx.JSON(statusFromError(richErr), map[string]any{
		"error": body,
	})
}

func statusFromError(richErr *goerrors.Error) int {
	if richErr.Code > 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "Failed to parse request").
		WithCode(goerrors.CodeBadRequest)
}

func validationError(err error) error {
	return goerrors.New("Validation failed", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode("VALIDATION_FAILED").
		WithMetadata(map[string]any{
			"fields": FormatValidationErrorToMap(err),
		})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map suitable for a JSON response.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	if err != nil {
		out["error"] = err.Error()
	}

	return out
}

// ValidatePhoneNumber validates optional phone values against the given
// default region. Empty values pass; use validation.Required to demand one.
func ValidatePhoneNumber(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return fmt.Errorf("invalid phone number")
		}

		if !phonenumbers.IsValidNumber(num) {
			return fmt.Errorf("invalid phone number")
		}

		return nil
	}
}
