package community

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ResetUserPasswordSQL updates the password hash in place. It also marks the
// email as verified (following a reset link proves mailbox ownership) and
// bumps the token version so every reset token issued before this one is
// rejected from now on.
var ResetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"is_email_verified" = TRUE,
	"password_hash" = ?,
	"token_version" = "token_version" + 1
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// ConfirmAccountSQL flips the confirmed flag. It never unsets it, so
// replaying a confirmation is a harmless no-op.
var ConfirmAccountSQL = `UPDATE "users" AS "usr"
SET
	"is_email_verified" = TRUE
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// ChangeUserEmailSQL swaps the address and bumps the token version,
// invalidating any other change-email token still in flight.
var ChangeUserEmailSQL = `UPDATE "users" AS "usr"
SET
	"email" = ?,
	"token_version" = "token_version" + 1
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// Users is the credential store: persistence of user records plus the
// targeted mutations the account lifecycle needs. Serialization of
// concurrent mutations is delegated to the database transaction the caller
// owns via RepositoryManager.RunInTx.
type Users interface {
	repository.Repository[*User]

	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)
	Save(ctx context.Context, record *User) (*User, error)
	SaveTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	ConfirmAccount(ctx context.Context, id uuid.UUID) (*User, error)
	ConfirmAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) (*User, error)
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) (*User, error)
	ChangeEmail(ctx context.Context, id uuid.UUID, email string) (*User, error)
	ChangeEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*User, error)
	ReplaceAffiliationsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, tagIDs []uuid.UUID) error

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

// NormalizeEmail lower-cases and trims an address so accounts cannot differ
// only by case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// userNotFound maps a store miss onto the not-found category the lifecycle
// handlers classify with goerrors.IsNotFound. The raw repository miss
// carries the database-specific category, which that check does not match.
func userNotFound(metadata map[string]any) *goerrors.Error {
	return goerrors.New("user not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(metadata)
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, userNotFound(map[string]any{
				"email": NormalizeEmail(email),
			})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, userNotFound(map[string]any{
				"id": id.String(),
			})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) Save(ctx context.Context, record *User) (*User, error) {
	return a.SaveTx(ctx, a.db, record)
}

func (a *users) SaveTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	if record == nil {
		return nil, userNotFound(nil)
	}

	if record.ID == uuid.Nil {
		return a.CreateTx(ctx, tx, record)
	}

	prepareUserDefaults(record)

	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(record.ID.String()),
	}

	return a.Repository.UpdateTx(ctx, tx, record, criteria...)
}

func (a *users) ConfirmAccount(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.ConfirmAccountTx(ctx, a.db, id)
}

func (a *users) ConfirmAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ConfirmAccountSQL, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, userNotFound(map[string]any{
			"id": id.String(),
		})
	}

	return res[0], nil
}

func (a *users) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) (*User, error) {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ResetUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, userNotFound(map[string]any{
			"id": id.String(),
		})
	}

	return res[0], nil
}

func (a *users) ChangeEmail(ctx context.Context, id uuid.UUID, email string) (*User, error) {
	return a.ChangeEmailTx(ctx, a.db, id, email)
}

func (a *users) ChangeEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ChangeUserEmailSQL, NormalizeEmail(email), id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, userNotFound(map[string]any{
			"id": id.String(),
		})
	}

	return res[0], nil
}

// ReplaceAffiliationsTx swaps the full affiliation tag set for a user, the
// way profile editing replaces tags wholesale.
func (a *users) ReplaceAffiliationsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, tagIDs []uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*UserTag)(nil)).
		Where("user_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	if len(tagIDs) == 0 {
		return nil
	}

	links := make([]*UserTag, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		links = append(links, &UserTag{UserID: id, TagID: tagID})
	}

	_, err := tx.NewInsert().Model(&links).Exec(ctx)
	return err
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = CURRENT_TIMESTAMP,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	// NOTE: same story as TrackSuccessfulLoginTx, a sparse ORM update
	// clobbers columns it never meant to touch.
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"login_attempt_at" = CURRENT_TIMESTAMP,
			"login_attempts" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, user.LoginAttempts+1, user.ID).Exec(ctx)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleMember
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
