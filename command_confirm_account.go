package community

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ConfirmAccountMessage struct {
	Token      string `json:"token"`
	OnResponse func(*ConfirmAccountResponse)
}

func (e ConfirmAccountMessage) Type() string { return "user.confirm_account" }

type ConfirmAccountResponse struct {
	User             *User
	AlreadyConfirmed bool
}

// ConfirmAccountHandler consumes a confirm-account token and flips the
// confirmed flag. Confirming an already-confirmed account is a no-op
// success, so replaying a still-valid token cannot corrupt state.
type ConfirmAccountHandler struct {
	repo     RepositoryManager
	codec    *TokenCodec
	activity ActivitySink
	logger   Logger
}

// NewConfirmAccountHandler creates a handler with sane defaults.
func NewConfirmAccountHandler(repo RepositoryManager, codec *TokenCodec) *ConfirmAccountHandler {
	return &ConfirmAccountHandler{
		repo:     repo,
		codec:    codec,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit confirmation events.
func (h *ConfirmAccountHandler) WithActivitySink(sink ActivitySink) *ConfirmAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmAccountHandler) WithLogger(logger Logger) *ConfirmAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmAccountHandler) Execute(ctx context.Context, event ConfirmAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmAccountHandler) execute(ctx context.Context, event ConfirmAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	claims, err := h.codec.Decode(event.Token, ActionConfirmAccount)
	if err != nil {
		return err
	}

	subject, err := claims.SubjectUUID()
	if err != nil {
		return ErrTokenMalformed
	}

	resp := &ConfirmAccountResponse{}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().FindByIDTx(ctx, tx, subject)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for confirmation")
		}

		resp.User = user

		if user.Confirmed {
			resp.AlreadyConfirmed = true
			return nil
		}

		confirmed, err := h.repo.Users().ConfirmAccountTx(ctx, tx, user.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm account")
		}

		resp.User = confirmed
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute account confirmation")
	}

	if !resp.AlreadyConfirmed {
		h.recordActivity(ctx, resp.User)
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *ConfirmAccountHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventAccountConfirmed,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during confirmation: %v", err)
	}
}

type RequestConfirmationMessage struct {
	UserID     string `json:"user_id"`
	OnResponse func(*RequestConfirmationResponse)
}

func (e RequestConfirmationMessage) Type() string { return "user.confirm_request" }

type RequestConfirmationResponse struct {
	Token string
	Email string
}

// RequestConfirmationHandler re-sends the confirmation link to the
// authenticated user's address with a freshly minted token.
type RequestConfirmationHandler struct {
	repo       RepositoryManager
	codec      *TokenCodec
	dispatcher NotificationDispatcher
	logger     Logger
}

// NewRequestConfirmationHandler creates a handler with sane defaults.
func NewRequestConfirmationHandler(repo RepositoryManager, codec *TokenCodec) *RequestConfirmationHandler {
	return &RequestConfirmationHandler{
		repo:       repo,
		codec:      codec,
		dispatcher: noopDispatcher{},
		logger:     defLogger{},
	}
}

// WithDispatcher sets the dispatcher used to send the confirmation email.
func (h *RequestConfirmationHandler) WithDispatcher(d NotificationDispatcher) *RequestConfirmationHandler {
	h.dispatcher = normalizeDispatcher(d)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RequestConfirmationHandler) WithLogger(logger Logger) *RequestConfirmationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestConfirmationHandler) Execute(ctx context.Context, event RequestConfirmationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during confirmation request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestConfirmationHandler) execute(ctx context.Context, event RequestConfirmationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	userID, err := parseUserID(event.UserID)
	if err != nil {
		return err
	}

	user, err := h.repo.Users().FindByID(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrIdentityNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for confirmation request")
	}

	token, err := h.codec.Issue(user.ID, ActionConfirmAccount)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue confirmation token")
	}

	if err := h.dispatcher.Send(ctx, Notification{
		To:       user.Email,
		Template: TemplateConfirmAccount,
		User:     user,
		Token:    token,
	}); err != nil {
		h.logger.Error("failed to dispatch confirmation email: %v", err)
	}

	if event.OnResponse != nil {
		event.OnResponse(&RequestConfirmationResponse{Token: token, Email: user.Email})
	}

	return nil
}
