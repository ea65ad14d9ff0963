package credentials

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// LocalsActorID is the fiber locals key holding the uuid of the caller on
// admin routes.
const LocalsActorID = "credentials.actor_id"

type ControllerRoutes struct {
	Login            string
	ChangePassword   string
	Recovery         string
	RecoveryVerify   string
	RecoveryComplete string
	Activation       string
	ActivationVerify string
	ActivationResend string
	Unlock           string
	Accounts         string
	AccountsRestore  string
}

// Controller exposes the Manager over JSON HTTP endpoints.
type Controller struct {
	Manager     *Manager
	Routes      *ControllerRoutes
	Logger      Logger
	DefaultRole string
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = logger
		return c
	}
}

func WithControllerRoutes(routes *ControllerRoutes) ControllerOption {
	return func(c *Controller) *Controller {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// WithDefaultRole sets the role given to accounts created without one.
func WithDefaultRole(role string) ControllerOption {
	return func(c *Controller) *Controller {
		c.DefaultRole = role
		return c
	}
}

func NewController(manager *Manager, opts ...ControllerOption) *Controller {
	c := &Controller{
		Manager:     manager,
		DefaultRole: DefaultAdminRoleName,
		Routes: &ControllerRoutes{
			Login:            "/login",
			ChangePassword:   "/password/change",
			Recovery:         "/password/recovery",
			RecoveryVerify:   "/password/recovery/verify",
			RecoveryComplete: "/password/recovery/complete",
			Activation:       "/activation",
			ActivationVerify: "/activation/verify",
			ActivationResend: "/activation/resend",
			Unlock:           "/unlock",
			Accounts:         "/accounts",
			AccountsRestore:  "/accounts/restore",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Manager == nil {
		panic("Missing Manager in credentials controller...")
	}

	_, c.Logger = ResolveLogger("credentials.http", nil, c.Logger)
	return c
}

// RegisterRoutes mounts the public account endpoints.
func (c *Controller) RegisterRoutes(r fiber.Router) {
	r.Post(c.Routes.Login, c.LoginPost)
	r.Post(c.Routes.ChangePassword, c.ChangePasswordPost)
	r.Post(c.Routes.Recovery, c.RecoveryPost)
	r.Get(c.Routes.RecoveryVerify, c.RecoveryVerifyGet)
	r.Post(c.Routes.RecoveryComplete, c.RecoveryCompletePost)
	r.Get(c.Routes.ActivationVerify, c.ActivationVerifyGet)
	r.Post(c.Routes.Activation, c.ActivationPost)
}

// RegisterAdminRoutes mounts the administrative endpoints. Callers are
// expected to protect r and set LocalsActorID.
func (c *Controller) RegisterAdminRoutes(r fiber.Router) {
	r.Post(c.Routes.ActivationResend, c.ActivationResendPost)
	r.Post(c.Routes.Unlock, c.UnlockPost)
	r.Post(c.Routes.Accounts, c.AccountCreate)
	r.Put(c.Routes.Accounts+"/:id", c.AccountUpdate)
	r.Delete(c.Routes.Accounts, c.AccountsDelete)
	r.Post(c.Routes.AccountsRestore, c.AccountsRestore)
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `json:"identifier" form:"identifier"`
	Password   string `json:"password" form:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *Controller) LoginPost(ctx *fiber.Ctx) error {
	payload := new(LoginRequest)
	if ok, err := c.bind(ctx, payload); !ok {
		return err
	}

	outcome, err := c.Manager.Validator().Validate(ctx.UserContext(), payload.Identifier, payload.Password)
	if err != nil {
		return c.fail(ctx, err)
	}

	if !outcome.Succeeded() {
		return c.fail(ctx, outcome.Err())
	}

	return ctx.JSON(fiber.Map{
		"status":  outcome.Status.String(),
		"account": outcome.Account,
		"roles":   outcome.Roles,
	})
}

type ChangePasswordRequest struct {
	Key             string `json:"key" form:"key"`
	CurrentPassword string `json:"current_password" form:"current_password"`
	NewPassword     string `json:"new_password" form:"new_password"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required, is.UUID),
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

func (c *Controller) ChangePasswordPost(ctx *fiber.Ctx) error {
	payload := new(ChangePasswordRequest)
	if ok, err := c.bind(ctx, payload); !ok {
		return err
	}

	err := c.Manager.Validator().ChangePassword(ctx.UserContext(), uuid.MustParse(payload.Key), payload.CurrentPassword, payload.NewPassword)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

type RecoveryRequest struct {
	Identifier string `json:"identifier" form:"identifier"`
}

func (r RecoveryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
	)
}

func (c *Controller) RecoveryPost(ctx *fiber.Ctx) error {
	payload := new(RecoveryRequest)
	if ok, err := c.bind(ctx, payload); !ok {
		return err
	}

	if err := c.Manager.Recovery().Initiate(ctx.UserContext(), payload.Identifier); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusAccepted)
}

func (c *Controller) RecoveryVerifyGet(ctx *fiber.Ctx) error {
	id, secret, ok := keyAndSecret(ctx.Query("key"), ctx.Query("secret"))
	if !ok {
		return c.fail(ctx, ErrInvalidOrExpiredToken)
	}

	if err := c.Manager.Recovery().Verify(ctx.UserContext(), id, secret); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// SecretRequest completes a recovery or activation flow.
type SecretRequest struct {
	Key      string `json:"key" form:"key"`
	Secret   string `json:"secret" form:"secret"`
	Password string `json:"password" form:"password"`
}

func (r SecretRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required),
		validation.Field(&r.Secret, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *Controller) RecoveryCompletePost(ctx *fiber.Ctx) error {
	payload := new(SecretRequest)
	if ok, err := c.bind(ctx, payload); !ok {
		return err
	}

	id, secret, ok := keyAndSecret(payload.Key, payload.Secret)
	if !ok {
		return c.fail(ctx, ErrInvalidOrExpiredToken)
	}

	if err := c.Manager.Recovery().Complete(ctx.UserContext(), id, secret, payload.Password); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *Controller) ActivationVerifyGet(ctx *fiber.Ctx) error {
	id, secret, ok := keyAndSecret(ctx.Query("key"), ctx.Query("secret"))
	if !ok {
		return c.fail(ctx, ErrInvalidOrExpiredToken)
	}

	if err := c.Manager.Activation().Verify(ctx.UserContext(), id, secret); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *Controller) ActivationPost(ctx *fiber.Ctx) error {
	payload := new(SecretRequest)
	if ok, err := c.bind(ctx, payload); !ok {
		return err
	}

	id, secret, ok := keyAndSecret(payload.Key, payload.Secret)
	if !ok {
		return c.fail(ctx, ErrInvalidOrExpiredToken)
	}

	if err := c.Manager.Activation().Complete(ctx.UserContext(), id, secret, payload.Password); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

type ResendRequest struct {
	Emails []string `json:"emails" form:"emails"`
}

func (r ResendRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Emails, validation.Required),
	)
}

func (c *Controller) ActivationResendPost(ctx *fiber.Ctx) error {
	payload := new(ResendRequest)
	if ok, err := c.bind(ctx, payload); !ok {
		return err
	}

	sent, err := c.Manager.Activation().Resend(ctx.UserContext(), payload.Emails...)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(fiber.Map{"sent": sent})
}

func (c *Controller) UnlockPost(ctx *fiber.Ctx) error {
	payload := new(RecoveryRequest)
	if ok, err := c.bind(ctx, payload); !ok {
		return err
	}

	if err := c.Manager.Unlock().GenerateUnlockLink(ctx.UserContext(), payload.Identifier); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusAccepted)
}

type CreateAccountRequest struct {
	NewAccount
	Role string `json:"role" form:"role"`
}

func (c *Controller) AccountCreate(ctx *fiber.Ctx) error {
	payload := new(CreateAccountRequest)
	if err := ctx.BodyParser(payload); err != nil {
		return c.fail(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").WithCode(goerrors.CodeBadRequest))
	}

	role := strings.TrimSpace(payload.Role)
	if role == "" {
		role = c.DefaultRole
	}

	account, err := c.Manager.Provisioning().CreateUser(ctx.UserContext(), payload.NewAccount, role)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(account)
}

func (c *Controller) AccountUpdate(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return c.fail(ctx, ErrAccountNotFound)
	}

	payload := new(AccountUpdate)
	if err := ctx.BodyParser(payload); err != nil {
		return c.fail(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").WithCode(goerrors.CodeBadRequest))
	}
	payload.ID = id

	account, err := c.Manager.Provisioning().UpdateUser(ctx.UserContext(), *payload)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(account)
}

type AccountIDsRequest struct {
	IDs []uuid.UUID `json:"ids" form:"ids"`
}

func (r AccountIDsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Required),
	)
}

func (c *Controller) AccountsDelete(ctx *fiber.Ctx) error {
	payload := new(AccountIDsRequest)
	if ok, err := c.bind(ctx, payload); !ok {
		return err
	}

	if err := c.Manager.Provisioning().DeleteUsers(ctx.UserContext(), actorID(ctx), payload.IDs...); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *Controller) AccountsRestore(ctx *fiber.Ctx) error {
	payload := new(AccountIDsRequest)
	if ok, err := c.bind(ctx, payload); !ok {
		return err
	}

	if err := c.Manager.Provisioning().UndeleteUsers(ctx.UserContext(), actorID(ctx), payload.IDs...); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

type validatable interface {
	Validate() error
}

// bind parses and validates the body. When it reports false the error
// response has already been written.
func (c *Controller) bind(ctx *fiber.Ctx, payload validatable) (bool, error) {
	if err := ctx.BodyParser(payload); err != nil {
		return false, c.fail(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return false, ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "validation failed",
			"validation": err,
		})
	}
	return true, nil
}

// fail writes err as a JSON error response. It returns nil once the
// response is written so fiber does not run its own error handler.
func (c *Controller) fail(ctx *fiber.Ctx, err error) error {
	var (
		policy   *PasswordPolicyError
		creation *CreationFailedError
		rich     *goerrors.Error
	)

	switch {
	case errors.As(err, &policy):
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "password does not meet policy",
			"code":    TextCodePasswordPolicy,
			"reasons": policy.Reasons,
		})
	case errors.As(err, &creation):
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "account creation failed",
			"code":    TextCodeCreationFailed,
			"reasons": creation.Reasons,
		})
	case goerrors.As(err, &rich) && rich.Category != goerrors.CategoryInternal:
		status := rich.Code
		if status == 0 {
			status = http.StatusBadRequest
		}
		return ctx.Status(status).JSON(fiber.Map{
			"error": rich.Message,
			"code":  rich.TextCode,
		})
	}

	c.Logger.Error("request failed", "path", ctx.Path(), "error", err)
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
	})
}

func keyAndSecret(key, secret string) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(key))
	if err != nil || strings.TrimSpace(secret) == "" {
		return uuid.Nil, "", false
	}
	return id, secret, true
}

func actorID(ctx *fiber.Ctx) uuid.UUID {
	if id, ok := ctx.Locals(LocalsActorID).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
