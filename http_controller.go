package community

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// GetRouterSession pulls the decoded session the auth middleware left in
// locals.
func GetRouterSession(c router.Context, key string) (Session, error) {
	stored := c.Locals(key)
	if stored == nil {
		return nil, ErrUnableToFindSession
	}

	session, ok := stored.(Session)
	if session == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	return session, nil
}

// RegisterAccountRoutes mounts the account lifecycle endpoints.
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountControllerOption) {

	controller := NewAccountController(opts...)

	app.
		Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")

	app.
		Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.Confirm), controller.ConfirmAccount).
		SetName("confirm.get")
	app.Get(controller.Routes.Confirm, controller.ResendConfirmation).
		SetName("confirm-resend.get")

	app.Get(controller.Routes.Unconfirmed, controller.UnconfirmedShow).
		SetName("unconfirmed.get")

	app.Get(controller.Routes.PasswordReset, controller.PasswordResetGet).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")

	app.Get(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.PasswordResetForm).
		SetName("pwd-reset-do.get")
	app.Post(fmt.Sprintf("%s/:token", controller.Routes.PasswordReset), controller.PasswordResetExecute).
		SetName("pwd-reset-do.post")

	app.Post(controller.Routes.ChangePassword, controller.ChangePassword).
		SetName("pwd-change.post")

	app.Post(controller.Routes.ChangeEmail, controller.ChangeEmailRequest).
		SetName("email-change.post")
	app.Get(fmt.Sprintf("%s/:token", controller.Routes.ChangeEmail), controller.ChangeEmailConfirm).
		SetName("email-change-do.get")

	app.Get(fmt.Sprintf("%s/:user_id/:token", controller.Routes.Invite), controller.JoinFromInvite).
		SetName("invite.get")
	app.Post(fmt.Sprintf("%s/:user_id/:token", controller.Routes.Invite), controller.ActivateInvite).
		SetName("invite.post")
}

type AccountControllerRoutes struct {
	Login          string
	Logout         string
	Register       string
	Confirm        string
	Unconfirmed    string
	PasswordReset  string
	ChangePassword string
	ChangeEmail    string
	Invite         string
}

type AccountControllerViews struct {
	Login         string
	Register      string
	Unconfirmed   string
	PasswordReset string
	ChangeEmail   string
	Invite        string
}

type AccountController struct {
	Debug        bool
	ContextKey   string
	Logger       Logger
	Repo         RepositoryManager
	Codec        *TokenCodec
	Dispatcher   NotificationDispatcher
	Activity     ActivitySink
	Routes       *AccountControllerRoutes
	Views        *AccountControllerViews
	Auther       HTTPAuthenticator
	ErrorHandler router.ErrorHandler
}

type AccountControllerOption func(*AccountController) *AccountController

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		ContextKey:   "session",
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AccountControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			Register:       "/account/register",
			Confirm:        "/account/confirm",
			Unconfirmed:    "/account/unconfirmed",
			PasswordReset:  "/account/reset-password",
			ChangePassword: "/account/change-password",
			ChangeEmail:    "/account/change-email",
			Invite:         "/account/join-from-invite",
		},
		Views: &AccountControllerViews{
			Login:         "account/login",
			Register:      "account/register",
			Unconfirmed:   "account/unconfirmed",
			PasswordReset: "account/password_reset",
			ChangeEmail:   "account/change_email",
			Invite:        "account/join_invite",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in account controller...")
	}

	if c.Codec == nil {
		panic("Missing TokenCodec in account controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in account controller...")
	}

	return c
}

func (a *AccountController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession will return the remember me flag
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccountController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(payload))
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		errs["authentication"] = "Authentication Error"
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors":  errs,
			"payload": payload,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, "/")

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AccountController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AccountController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterUserMessage{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Email           string `form:"email" json:"email"`
	ZIPCode         string `form:"zip_code" json:"zip_code"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {

	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.ZIPCode, validation.Length(5, 10)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("register user parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("register user validate payload: %v", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		ZIPCode:   payload.ZIPCode,
		Password:  payload.Password,
	}

	registerUser := NewRegisterUserHandler(a.Repo, a.Codec).
		WithDispatcher(a.Dispatcher).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: %v", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error registering account",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "A confirmation email has been sent to you",
	}).Redirect(a.Routes.Unconfirmed, fiber.StatusSeeOther)
}

func (a *AccountController) ConfirmAccount(ctx router.Context) error {
	token := ctx.Param("token", "")

	var res *ConfirmAccountResponse
	req := ConfirmAccountMessage{
		Token: token,
		OnResponse: func(resp *ConfirmAccountResponse) {
			res = resp
		},
	}

	confirm := NewConfirmAccountHandler(a.Repo, a.Codec).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := confirm.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("confirm account error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "The confirmation link is invalid or has expired",
		}).Redirect(a.Routes.Unconfirmed, fiber.StatusSeeOther)
	}

	message := "You have confirmed your account. Thanks!"
	if res != nil && res.AlreadyConfirmed {
		message = "Account already confirmed."
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": message,
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountController) ResendConfirmation(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.contextKey())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	req := RequestConfirmationMessage{
		UserID: session.GetUserID(),
	}

	request := NewRequestConfirmationHandler(a.Repo, a.Codec).
		WithDispatcher(a.Dispatcher).
		WithLogger(a.Logger)

	if err := request.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("resend confirmation error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "A new confirmation email has been sent to you",
	}).Redirect(a.Routes.Unconfirmed, fiber.StatusSeeOther)
}

func (a *AccountController) UnconfirmedShow(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.contextKey())
	if err == nil && session.IsConfirmed() {
		return ctx.Redirect("/", fiber.StatusSeeOther)
	}

	return ctx.Render(a.Views.Unconfirmed, router.ViewContext{})
}

const (
	stageKey = "stage"
	tokenKey = "token"
	emailKey = "email"
)

func (a *AccountController) PasswordResetGet(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": nil,
		"reset": map[string]string{
			stageKey: ResetInit,
		},
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
	Stage string `form:"stage" json:"stage"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Stage,
			validation.Required,
			validation.In(
				ResetInit,
			),
		),
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AccountController) PasswordResetPost(ctx router.Context) error {
	errs := map[string]string{}
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		errs["form"] = "Failed to parse form"
		a.Logger.Error("password reset parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: %v", err)
		validationErrs := FormatValidationErrorToMap(err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": validationErrs,
		})
	}

	var res *InitializePasswordResetResponse

	req := InitializePasswordResetMessage{
		Stage: payload.Stage,
		Email: payload.Email,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			res = resp
		},
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Repo, a.Codec).
		WithDispatcher(a.Dispatcher).
		WithLogger(a.Logger)

	if err := initPwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password reset init error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error requesting password reset",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(res))
	}

	// an unknown address renders the same view, no account disclosure
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": errs,
		"reset": map[string]string{
			stageKey: AccountVerification,
			emailKey: payload.Email,
		},
	})
}

func (a *AccountController) PasswordResetForm(ctx router.Context) error {
	token := ctx.Param("token", "")

	errs := map[string]string{}

	// surface a dead link before the user types a new password
	if _, err := a.Codec.Decode(token, ActionResetPassword); err != nil {
		errs["verification"] = err.Error()
		return ctx.Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"reset": map[string]string{
				stageKey: ResetUnknown,
				tokenKey: token,
			},
		})
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": errs,
		"reset": map[string]string{
			stageKey: ChangingPassword,
			tokenKey: token,
		},
	})
}

// PasswordResetVerifyPayload holds values for password reset
type PasswordResetVerifyPayload struct {
	Stage           string `form:"stage" json:"stage"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetVerifyPayload) Validate() error {

	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Stage,
			validation.Required,
			validation.In(
				string(ChangingPassword),
			),
		),
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(10, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) PasswordResetExecute(ctx router.Context) error {
	token := ctx.Param("token", "")

	errs := map[string]string{}
	payload := new(PasswordResetVerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		errs["form"] = "Failed to parse form"
		a.Logger.Error("password reset parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: %v", err)
		errs = FormatValidationErrorToMap(err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	input := FinalizePasswordResetMessage{
		Token:    token,
		Email:    payload.Email,
		Password: payload.Password,
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Repo, a.Codec).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := finalizePwdReset.Execute(ctx.Context(), input); err != nil {
		errs["validation"] = err.Error()
		return ctx.Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"reset": router.ViewContext{
				stageKey: ChangingPassword,
				tokenKey: token,
				emailKey: payload.Email,
			},
		})
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": errs,
		"reset": router.ViewContext{
			stageKey: ChangeFinalized,
		},
	})
}

// ChangePasswordPayload carries the change password form
type ChangePasswordPayload struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) ChangePassword(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.contextKey())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(ChangePasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Redirect(a.Routes.ChangePassword, fiber.StatusSeeOther)
	}

	req := ChangePasswordMessage{
		UserID:          session.GetUserID(),
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.Password,
	}

	change := NewChangePasswordHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := change.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("change password error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Could not change your password",
		}).Redirect(a.Routes.ChangePassword, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your password has been updated",
	}).Redirect("/", fiber.StatusSeeOther)
}

// ChangeEmailPayload carries the change email form
type ChangeEmailPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will validate the payload
func (r ChangeEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AccountController) ChangeEmailRequest(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.contextKey())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(ChangeEmailPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.ChangeEmail, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	req := RequestEmailChangeMessage{
		UserID:   session.GetUserID(),
		NewEmail: payload.Email,
		Password: payload.Password,
	}

	request := NewRequestEmailChangeHandler(a.Repo, a.Codec).
		WithDispatcher(a.Dispatcher).
		WithLogger(a.Logger)

	if err := request.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("change email request error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Could not request the email change",
		}).Render(a.Views.ChangeEmail, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "A confirmation link has been sent to your new address",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountController) ChangeEmailConfirm(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.contextKey())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	token := ctx.Param("token", "")

	req := ConfirmEmailChangeMessage{
		UserID: session.GetUserID(),
		Token:  token,
	}

	confirm := NewConfirmEmailChangeHandler(a.Repo, a.Codec).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := confirm.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("change email confirm error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "The email change link is invalid or has expired",
		}).Redirect("/", fiber.StatusSeeOther)
	}

	// the session still carries the old address, force a fresh login
	a.Auther.Logout(ctx)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your email has been updated, please sign in again",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AccountController) JoinFromInvite(ctx router.Context) error {
	userID := ctx.Param("user_id", "")
	token := ctx.Param("token", "")

	var res *JoinFromInviteResponse
	req := JoinFromInviteMessage{
		UserID: userID,
		Token:  token,
		OnResponse: func(resp *JoinFromInviteResponse) {
			res = resp
		},
	}

	join := NewJoinFromInviteHandler(a.Repo, a.Codec).
		WithDispatcher(a.Dispatcher).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := join.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("join from invite error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Could not process your invitation",
		}).Redirect("/", fiber.StatusSeeOther)
	}

	if res != nil && res.Reinvited {
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": "Your invitation expired, a new one has been sent to your email",
		}).Redirect("/", fiber.StatusSeeOther)
	}

	return ctx.Render(a.Views.Invite, router.ViewContext{
		"record": map[string]string{
			"user_id": userID,
			tokenKey:  token,
			stageKey:  InviteCreatePassword,
		},
	})
}

// InviteActivatePayload carries the invitee's chosen password
type InviteActivatePayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r InviteActivatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) ActivateInvite(ctx router.Context) error {
	userID := ctx.Param("user_id", "")
	token := ctx.Param("token", "")

	payload := new(InviteActivatePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Invite, router.ViewContext{
			"record": map[string]string{
				"user_id": userID,
				tokenKey:  token,
				stageKey:  InviteCreatePassword,
			},
			"validation": FormatValidationErrorToMap(err),
		})
	}

	req := ActivateInviteMessage{
		UserID:   userID,
		Token:    token,
		Password: payload.Password,
	}

	activate := NewActivateInviteHandler(a.Repo, a.Codec).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := activate.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("activate invite error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Could not complete your invitation",
		}).Redirect("/", fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Welcome! You can now sign in",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AccountController) contextKey() string {
	if a.ContextKey == "" {
		return "session"
	}
	return a.ContextKey
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map suitable for view rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
