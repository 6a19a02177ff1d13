package community_test

import (
	"context"
	"database/sql"
	"io/fs"
	"sort"
	"strings"
	"testing"

	community "github.com/goliatone/go-community"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupUsersRepo(t *testing.T) (community.Users, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	db.RegisterModel((*community.UserTag)(nil))

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	migrations := community.GetMigrationsFS()
	entries, err := fs.ReadDir(migrations, "data/sql/migrations")
	require.NoError(t, err)

	var ups []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			ups = append(ups, entry.Name())
		}
	}
	sort.Strings(ups)

	for _, name := range ups {
		raw, err := fs.ReadFile(migrations, "data/sql/migrations/"+name)
		require.NoError(t, err)
		_, err = db.Exec(string(raw))
		require.NoError(t, err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return community.NewUsersRepository(db), db
}

func TestUsersRepositoryCreateAndFind(t *testing.T) {
	repo, _ := setupUsersRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &community.User{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "Ada@Example.com",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, community.RoleMember, created.Role)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.False(t, created.Confirmed)

	t.Run("find by email ignores case", func(t *testing.T) {
		found, err := repo.FindByEmail(ctx, "ADA@Example.COM")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("find by id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", found.Email)
	})

	t.Run("unknown email reads as not found", func(t *testing.T) {
		_, err := repo.FindByEmail(ctx, "nobody@example.com")
		require.Error(t, err)
		assert.True(t, goerrors.IsNotFound(err))
	})
}

func TestUsersRepositoryConfirmAccount(t *testing.T) {
	repo, _ := setupUsersRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &community.User{Email: "grace@example.com"})
	require.NoError(t, err)
	require.False(t, created.Confirmed)

	confirmed, err := repo.ConfirmAccount(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.Confirmed)

	// confirming twice never unsets the flag
	again, err := repo.ConfirmAccount(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, again.Confirmed)

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.ConfirmAccount(ctx, uuid.New())
		require.Error(t, err)
		assert.True(t, goerrors.IsNotFound(err))
	})
}

func TestUsersRepositoryResetPassword(t *testing.T) {
	repo, _ := setupUsersRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &community.User{
		Email:        "mary@example.com",
		PasswordHash: "old-hash",
	})
	require.NoError(t, err)
	require.Equal(t, 0, created.TokenVersion)

	updated, err := repo.ResetPassword(ctx, created.ID, "new-hash")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", updated.PasswordHash)
	assert.Equal(t, 1, updated.TokenVersion)
	// a consumed reset link proves mailbox ownership
	assert.True(t, updated.Confirmed)
}

func TestUsersRepositoryChangeEmail(t *testing.T) {
	repo, _ := setupUsersRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &community.User{Email: "old@example.com"})
	require.NoError(t, err)

	updated, err := repo.ChangeEmail(ctx, created.ID, "New@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, created.TokenVersion+1, updated.TokenVersion)

	found, err := repo.FindByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestUsersRepositoryReplaceAffiliations(t *testing.T) {
	repo, db := setupUsersRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &community.User{Email: "tagged@example.com"})
	require.NoError(t, err)

	tagA := &community.AffiliationTag{ID: uuid.New(), Name: "parents"}
	tagB := &community.AffiliationTag{ID: uuid.New(), Name: "volunteers"}
	_, err = db.NewInsert().Model(&[]*community.AffiliationTag{tagA, tagB}).Exec(ctx)
	require.NoError(t, err)

	err = repo.ReplaceAffiliationsTx(ctx, db, created.ID, []uuid.UUID{tagA.ID, tagB.ID})
	require.NoError(t, err)

	count, err := db.NewSelect().
		Model((*community.UserTag)(nil)).
		Where("user_id = ?", created.ID).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// replacing is wholesale, not additive
	err = repo.ReplaceAffiliationsTx(ctx, db, created.ID, []uuid.UUID{tagB.ID})
	require.NoError(t, err)

	count, err = db.NewSelect().
		Model((*community.UserTag)(nil)).
		Where("user_id = ?", created.ID).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestRegisterUserHandlerAgainstStore runs registration against the real
// store instead of mocks: a fresh address must register cleanly, meaning the
// store's miss surfaces as a not-found the handler recognizes rather than
// an internal failure.
func TestRegisterUserHandlerAgainstStore(t *testing.T) {
	_, db := setupUsersRepo(t)
	ctx := context.Background()

	repo := community.NewRepositoryManager(db)
	handler := community.NewRegisterUserHandler(repo, testCodec()).
		WithLogger(testLogger{})

	var res *community.RegisterUserResponse
	err := handler.Execute(ctx, community.RegisterUserMessage{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "Fresh@Example.com",
		Password:  "password12345",
		OnResponse: func(resp *community.RegisterUserResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "fresh@example.com", res.User.Email)
	assert.False(t, res.User.Confirmed)
	require.NotEmpty(t, res.Token)

	// the same address, any casing, is now taken
	err = handler.Execute(ctx, community.RegisterUserMessage{
		Email:    "FRESH@example.com",
		Password: "password12345",
	})
	require.ErrorIs(t, err, community.ErrEmailTaken)
}

// TestInitializePasswordResetUnknownEmailAgainstStore checks the
// anti-enumeration property against the real store: an address with no
// account gets the same generic outcome as a known one, not an error.
func TestInitializePasswordResetUnknownEmailAgainstStore(t *testing.T) {
	_, db := setupUsersRepo(t)
	ctx := context.Background()

	repo := community.NewRepositoryManager(db)

	dispatched := false
	handler := community.NewInitializePasswordResetHandler(repo, testCodec()).
		WithDispatcher(community.NotificationDispatcherFunc(func(context.Context, community.Notification) error {
			dispatched = true
			return nil
		})).
		WithLogger(testLogger{})

	var res *community.InitializePasswordResetResponse
	err := handler.Execute(ctx, community.InitializePasswordResetMessage{
		Stage: community.ResetInit,
		Email: "ghost@example.com",
		OnResponse: func(resp *community.InitializePasswordResetResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, community.AccountVerification, res.Stage)
	assert.False(t, dispatched)
}

func TestUsersRepositoryLoginTracking(t *testing.T) {
	repo, _ := setupUsersRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &community.User{
		Email:        "login@example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)

	require.NoError(t, repo.TrackAttemptedLogin(ctx, created))

	attempted, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, attempted.LoginAttempts)
	require.NotNil(t, attempted.LoginAttemptAt)
	// tracking only touches the attempt columns
	require.NotNil(t, attempted.CreatedAt)
	assert.Equal(t, "login@example.com", attempted.Email)

	require.NoError(t, repo.TrackSuccessfulLogin(ctx, attempted))

	reset, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.LoginAttempts)
	assert.Nil(t, reset.LoginAttemptAt)
	require.NotNil(t, reset.LoggedInAt)
	require.NotNil(t, reset.CreatedAt)
}
