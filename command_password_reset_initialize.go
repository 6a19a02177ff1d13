package community

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// PasswordResetStep step on password reset
type PasswordResetStep = string

const (
	// ResetUnknown is the unknown status
	ResetUnknown PasswordResetStep = "unknown"
	// ResetInit is the initial step
	ResetInit PasswordResetStep = "show-reset"
	// AccountVerification notification sent
	AccountVerification PasswordResetStep = "email-sent"
	// ChangingPassword user will change password
	ChangingPassword PasswordResetStep = "change-password"
	// ChangeFinalized processing change
	ChangeFinalized PasswordResetStep = "password-changed"
)

type InitializePasswordResetMessage struct {
	Stage      string `json:"stage"`
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	Stage   string
	Success bool
}

// InitializePasswordResetHandler issues a reset-password token when the
// address matches an account. The outcome reported to the caller is the
// same either way so the endpoint cannot be used to probe for accounts.
type InitializePasswordResetHandler struct {
	repo       RepositoryManager
	codec      *TokenCodec
	dispatcher NotificationDispatcher
	logger     Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, codec *TokenCodec) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:       repo,
		codec:      codec,
		dispatcher: noopDispatcher{},
		logger:     defLogger{},
	}
}

// WithDispatcher sets the dispatcher used to send the reset email.
func (h *InitializePasswordResetHandler) WithDispatcher(d NotificationDispatcher) *InitializePasswordResetHandler {
	h.dispatcher = normalizeDispatcher(d)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Stage != ResetInit {
		return goerrors.New("unknown or invalid stage for password reset initialization", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"stage": event.Stage})
	}

	user, err := h.repo.Users().FindByEmail(ctx, event.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// report the generic outcome without issuing anything
			resp.Stage = AccountVerification
			resp.Success = true
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token, err := h.codec.Issue(
		user.ID,
		ActionResetPassword,
		WithTokenVersion(user.TokenVersion),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue password reset token")
	}

	if err := h.dispatcher.Send(ctx, Notification{
		To:       user.Email,
		Template: TemplateResetPassword,
		User:     user,
		Token:    token,
	}); err != nil {
		h.logger.Error("failed to dispatch password reset email: %v", err)
	}

	resp.Stage = AccountVerification
	resp.Success = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
