package community

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RequestEmailChangeMessage struct {
	UserID   string `json:"user_id"`
	NewEmail string `json:"new_email"`
	Password string `json:"password"`

	OnResponse func(*RequestEmailChangeResponse) `json:"-"`
}

func (e RequestEmailChangeMessage) Type() string { return "user.email_change_request" }

// RequestEmailChangeResponse carries the token emailed to the new address.
type RequestEmailChangeResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// RequestEmailChangeHandler verifies the caller's password, checks the new
// address is free, and dispatches a change-email token to the new address.
// The stored email is left untouched until the token comes back confirmed.
type RequestEmailChangeHandler struct {
	repo       RepositoryManager
	codec      *TokenCodec
	dispatcher NotificationDispatcher
	logger     Logger
}

// NewRequestEmailChangeHandler creates a handler with sane defaults.
func NewRequestEmailChangeHandler(repo RepositoryManager, codec *TokenCodec) *RequestEmailChangeHandler {
	return &RequestEmailChangeHandler{
		repo:       repo,
		codec:      codec,
		dispatcher: noopDispatcher{},
		logger:     defLogger{},
	}
}

// WithDispatcher sets the dispatcher used to deliver the change-email token.
func (h *RequestEmailChangeHandler) WithDispatcher(dispatcher NotificationDispatcher) *RequestEmailChangeHandler {
	h.dispatcher = normalizeDispatcher(dispatcher)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RequestEmailChangeHandler) WithLogger(logger Logger) *RequestEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestEmailChangeHandler) Execute(ctx context.Context, event RequestEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email change request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestEmailChangeHandler) execute(ctx context.Context, event RequestEmailChangeMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	userID, err := parseUserID(event.UserID)
	if err != nil {
		return err
	}

	newEmail := NormalizeEmail(event.NewEmail)
	if newEmail == "" {
		return ErrNoEmptyString
	}

	user, err := h.repo.Users().FindByID(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrIdentityNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for email change")
	}

	if err := ComparePasswordAndHash(event.Password, user.PasswordHash); err != nil {
		return ErrWrongPassword
	}

	if _, err := h.repo.Users().FindByEmail(ctx, newEmail); err == nil {
		return ErrEmailTaken
	} else if !goerrors.IsNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not check email availability")
	}

	token, err := h.codec.Issue(user.ID, ActionChangeEmail,
		WithTargetEmail(newEmail),
		WithTokenVersion(user.TokenVersion),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue change email token")
	}

	notification := Notification{
		To:       newEmail,
		Template: TemplateChangeEmail,
		User:     user,
		Token:    token,
	}

	if err := normalizeDispatcher(h.dispatcher).Send(ctx, notification); err != nil {
		h.logger.Warn("change email notification error: %v", err)
	}

	if event.OnResponse != nil {
		event.OnResponse(&RequestEmailChangeResponse{
			User:  user,
			Token: token,
		})
	}

	return nil
}

type ConfirmEmailChangeMessage struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`

	OnResponse func(*ConfirmEmailChangeResponse) `json:"-"`
}

func (e ConfirmEmailChangeMessage) Type() string { return "user.email_change_confirm" }

// ConfirmEmailChangeResponse reports the address the account now uses.
type ConfirmEmailChangeResponse struct {
	User  *User  `json:"user"`
	Email string `json:"email"`
}

// ConfirmEmailChangeHandler consumes a change-email token and swaps the
// stored address. The token subject has to match the authenticated caller,
// and the embedded version must still match the record so a token cannot be
// replayed after a password reset or a later email change.
type ConfirmEmailChangeHandler struct {
	repo     RepositoryManager
	codec    *TokenCodec
	activity ActivitySink
	logger   Logger
}

// NewConfirmEmailChangeHandler creates a handler with sane defaults.
func NewConfirmEmailChangeHandler(repo RepositoryManager, codec *TokenCodec) *ConfirmEmailChangeHandler {
	return &ConfirmEmailChangeHandler{
		repo:     repo,
		codec:    codec,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit email change events.
func (h *ConfirmEmailChangeHandler) WithActivitySink(sink ActivitySink) *ConfirmEmailChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmEmailChangeHandler) WithLogger(logger Logger) *ConfirmEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmEmailChangeHandler) Execute(ctx context.Context, event ConfirmEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email change confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailChangeHandler) execute(ctx context.Context, event ConfirmEmailChangeMessage) error {
	var user *User
	var newEmail string

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	userID, err := parseUserID(event.UserID)
	if err != nil {
		return err
	}

	claims, err := h.codec.Decode(event.Token, ActionChangeEmail)
	if err != nil {
		return err
	}

	subject, err := claims.SubjectUUID()
	if err != nil {
		return err
	}

	if subject != userID {
		return ErrActionMismatch
	}

	newEmail = NormalizeEmail(claims.TargetEmail)
	if newEmail == "" {
		return goerrors.New("change email token carries no target address", goerrors.CategoryBadInput).
			WithTextCode(TextCodeTokenMalformed)
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().FindByIDTx(ctx, tx, userID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for email change")
		}

		if claims.Version != user.TokenVersion {
			return goerrors.New("change email token has already been used", goerrors.CategoryConflict).
				WithTextCode("TOKEN_ALREADY_USED")
		}

		// someone else may have registered the address since the request
		if other, err := h.repo.Users().FindByEmailTx(ctx, tx, newEmail); err == nil && other.ID != user.ID {
			return ErrEmailTaken
		} else if err != nil && !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not check email availability")
		}

		user, err = h.repo.Users().ChangeEmailTx(ctx, tx, user.ID, newEmail)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user email in database")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm email change")
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&ConfirmEmailChangeResponse{
			User:  user,
			Email: newEmail,
		})
	}

	return nil
}

func (h *ConfirmEmailChangeHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventEmailChanged,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID: user.ID.String(),
		Metadata: map[string]any{
			"email": user.Email,
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during email change: %v", err)
	}
}
