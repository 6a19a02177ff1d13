package community

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// InviteStep constants describe where in the onboarding flow the
// invitee currently is.
const (
	InviteCreatePassword = "create-password"
	InviteReissued       = "invite-resent"
	InviteCompleted      = "joined"
)

type JoinFromInviteMessage struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`

	OnResponse func(*JoinFromInviteResponse) `json:"-"`
}

func (e JoinFromInviteMessage) Type() string { return "user.invite_join" }

// JoinFromInviteResponse reports whether the invitee may proceed to set a
// password or, when the token could not be honored, that a fresh invite
// went out to the address on file.
type JoinFromInviteResponse struct {
	User      *User  `json:"user"`
	Stage     string `json:"stage"`
	Reinvited bool   `json:"reinvited"`
}

// JoinFromInviteHandler validates an invite token for a provisioned
// account. A dead or mangled token is not treated as a hard failure: the
// invitee had no say in when the email was opened, so we mint a fresh
// invite and send it to the stored address instead of surfacing an error.
type JoinFromInviteHandler struct {
	repo       RepositoryManager
	codec      *TokenCodec
	dispatcher NotificationDispatcher
	activity   ActivitySink
	logger     Logger
}

// NewJoinFromInviteHandler creates a handler with sane defaults.
func NewJoinFromInviteHandler(repo RepositoryManager, codec *TokenCodec) *JoinFromInviteHandler {
	return &JoinFromInviteHandler{
		repo:       repo,
		codec:      codec,
		dispatcher: noopDispatcher{},
		activity:   noopActivitySink{},
		logger:     defLogger{},
	}
}

// WithDispatcher sets the dispatcher used to deliver re-issued invites.
func (h *JoinFromInviteHandler) WithDispatcher(dispatcher NotificationDispatcher) *JoinFromInviteHandler {
	h.dispatcher = normalizeDispatcher(dispatcher)
	return h
}

// WithActivitySink sets the sink used to emit invite events.
func (h *JoinFromInviteHandler) WithActivitySink(sink ActivitySink) *JoinFromInviteHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *JoinFromInviteHandler) WithLogger(logger Logger) *JoinFromInviteHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *JoinFromInviteHandler) Execute(ctx context.Context, event JoinFromInviteMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during invite join")
	default:
		return h.execute(ctx, event)
	}
}

func (h *JoinFromInviteHandler) execute(ctx context.Context, event JoinFromInviteMessage) error {
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for invite join")
	}

	if user.HasPassword() {
		return ErrAlreadyJoined
	}

	claims, decodeErr := h.codec.Decode(event.Token, ActionInvite)
	if decodeErr == nil {
		if subject, serr := claims.SubjectUUID(); serr != nil || subject != user.ID {
			decodeErr = ErrActionMismatch
		}
	}

	if decodeErr != nil {
		h.logger.Info("invite token rejected for %s, re-issuing: %v", user.ID, decodeErr)
		return h.reissueInvite(ctx, user, event.OnResponse)
	}

	return h.admitInvitee(ctx, user, event.OnResponse)
}

func (h *JoinFromInviteHandler) admitInvitee(ctx context.Context, user *User, respond func(*JoinFromInviteResponse)) error {
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		confirmed, err := h.repo.Users().ConfirmAccountTx(ctx, tx, user.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm invited account")
		}
		user = confirmed
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to admit invitee")
	}

	if respond != nil {
		respond(&JoinFromInviteResponse{
			User:  user,
			Stage: InviteCreatePassword,
		})
	}

	return nil
}

func (h *JoinFromInviteHandler) reissueInvite(ctx context.Context, user *User, respond func(*JoinFromInviteResponse)) error {
	token, err := h.codec.Issue(user.ID, ActionInvite)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to re-issue invite token")
	}

	notification := Notification{
		To:       user.Email,
		Template: TemplateInvite,
		User:     user,
		Token:    token,
	}

	if err := normalizeDispatcher(h.dispatcher).Send(ctx, notification); err != nil {
		h.logger.Warn("invite re-issue notification error: %v", err)
	}

	h.recordActivity(ctx, user, ActivityEventInviteReissued)

	if respond != nil {
		respond(&JoinFromInviteResponse{
			User:      user,
			Stage:     InviteReissued,
			Reinvited: true,
		})
	}

	return nil
}

func (h *JoinFromInviteHandler) recordActivity(ctx context.Context, user *User, eventType ActivityEventType) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: eventType,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during invite join: %v", err)
	}
}

type ActivateInviteMessage struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Password string `json:"password"`

	OnResponse func(*ActivateInviteResponse) `json:"-"`
}

func (e ActivateInviteMessage) Type() string { return "user.invite_activate" }

// ActivateInviteResponse confirms the invitee finished onboarding.
type ActivateInviteResponse struct {
	User  *User  `json:"user"`
	Stage string `json:"stage"`
}

// ActivateInviteHandler finishes invite onboarding: the invitee presents
// the invite token once more along with their chosen password, and the
// account becomes a fully joined, confirmed member.
type ActivateInviteHandler struct {
	repo     RepositoryManager
	codec    *TokenCodec
	activity ActivitySink
	logger   Logger
}

// NewActivateInviteHandler creates a handler with sane defaults.
func NewActivateInviteHandler(repo RepositoryManager, codec *TokenCodec) *ActivateInviteHandler {
	return &ActivateInviteHandler{
		repo:     repo,
		codec:    codec,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit invite events.
func (h *ActivateInviteHandler) WithActivitySink(sink ActivitySink) *ActivateInviteHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateInviteHandler) WithLogger(logger Logger) *ActivateInviteHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ActivateInviteHandler) Execute(ctx context.Context, event ActivateInviteMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during invite activation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateInviteHandler) execute(ctx context.Context, event ActivateInviteMessage) error {
	var user *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	userID, err := parseUserID(event.UserID)
	if err != nil {
		return err
	}

	claims, err := h.codec.Decode(event.Token, ActionInvite)
	if err != nil {
		return err
	}

	if subject, serr := claims.SubjectUUID(); serr != nil || subject != userID {
		return ErrActionMismatch
	}

	passwordHash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().FindByIDTx(ctx, tx, userID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for invite activation")
		}

		if user.HasPassword() {
			return ErrAlreadyJoined
		}

		user, err = h.repo.Users().ResetPasswordTx(ctx, tx, user.ID, passwordHash)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store invitee password")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate invite")
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&ActivateInviteResponse{
			User:  user,
			Stage: InviteCompleted,
		})
	}

	return nil
}

func (h *ActivateInviteHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventInviteJoined,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during invite activation: %v", err)
	}
}
