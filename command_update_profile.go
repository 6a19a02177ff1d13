package community

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UpdateProfileMessage struct {
	UserID    string     `json:"user_id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Bio       string     `json:"bio"`
	Birthday  *time.Time `json:"birthday,omitempty"`
	ZIPCode   string     `json:"zip_code"`
	TagIDs    []string   `json:"tag_ids"`

	OnResponse func(*User) `json:"-"`
}

func (e UpdateProfileMessage) Type() string { return "user.update_profile" }

// UpdateProfileHandler persists profile attributes and replaces the user's
// affiliation tag set in one transaction. Email and password are out of
// scope here, they go through their own flows.
type UpdateProfileHandler struct {
	repo   RepositoryManager
	logger Logger
}

// NewUpdateProfileHandler creates a handler with sane defaults.
func NewUpdateProfileHandler(repo RepositoryManager) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during profile update")
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	var user *User

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	userID, err := parseUserID(event.UserID)
	if err != nil {
		return err
	}

	tagIDs := make([]uuid.UUID, 0, len(event.TagIDs))
	for _, raw := range event.TagIDs {
		tagID, err := uuid.Parse(raw)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid affiliation tag identifier").
				WithMetadata(map[string]any{
					"tag_id": raw,
				})
		}
		tagIDs = append(tagIDs, tagID)
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().FindByIDTx(ctx, tx, userID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for profile update")
		}

		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Bio = event.Bio
		user.Birthday = event.Birthday
		user.ZIPCode = event.ZIPCode

		user, err = h.repo.Users().SaveTx(ctx, tx, user)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist profile update")
		}

		if err := h.repo.Users().ReplaceAffiliationsTx(ctx, tx, user.ID, tagIDs); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update affiliation tags")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
