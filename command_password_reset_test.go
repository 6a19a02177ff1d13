package community_test

import (
	"context"
	"database/sql"
	"testing"

	community "github.com/goliatone/go-community"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestInitializePasswordResetDispatchesToken(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	dispatcher := &MockDispatcher{}
	codec := testCodec()

	handler := community.NewInitializePasswordResetHandler(repo, codec).
		WithDispatcher(dispatcher).
		WithLogger(testLogger{})

	stored := &community.User{
		ID:           uuid.New(),
		Email:        "ada@example.com",
		TokenVersion: 3,
	}

	repo.On("Users").Return(users)
	users.On("FindByEmail", mock.Anything, stored.Email).
		Return(stored, nil).Once()

	dispatcher.On("Send", mock.Anything, mock.MatchedBy(func(n community.Notification) bool {
		if n.To != stored.Email || n.Template != community.TemplateResetPassword {
			return false
		}
		claims, err := codec.Decode(n.Token, community.ActionResetPassword)
		return err == nil && claims.Version == stored.TokenVersion
	})).Return(nil).Once()

	var res *community.InitializePasswordResetResponse
	err := handler.Execute(ctx, community.InitializePasswordResetMessage{
		Stage: community.ResetInit,
		Email: stored.Email,
		OnResponse: func(resp *community.InitializePasswordResetResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.True(t, res.Success)
	require.Equal(t, community.AccountVerification, res.Stage)

	repo.AssertExpectations(t)
	users.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}

func TestInitializePasswordResetUnknownEmailStaysSilent(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	dispatcher := &MockDispatcher{}

	handler := community.NewInitializePasswordResetHandler(repo, testCodec()).
		WithDispatcher(dispatcher).
		WithLogger(testLogger{})

	repo.On("Users").Return(users)
	users.On("FindByEmail", mock.Anything, "ghost@example.com").
		Return(nil, notFoundErr()).Once()

	var res *community.InitializePasswordResetResponse
	err := handler.Execute(ctx, community.InitializePasswordResetMessage{
		Stage: community.ResetInit,
		Email: "ghost@example.com",
		OnResponse: func(resp *community.InitializePasswordResetResponse) {
			res = resp
		},
	})

	// identical outcome to the known-email path, nothing dispatched
	require.NoError(t, err)
	require.NotNil(t, res)
	require.True(t, res.Success)
	require.Equal(t, community.AccountVerification, res.Stage)

	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestInitializePasswordResetRejectsBadStage(t *testing.T) {
	handler := community.NewInitializePasswordResetHandler(&MockRepositoryManager{}, testCodec()).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), community.InitializePasswordResetMessage{
		Stage: "bogus",
		Email: "ada@example.com",
	})

	var richErr *goerrors.Error
	require.ErrorAs(t, err, &richErr)
	require.Equal(t, goerrors.CategoryBadInput, richErr.Category)
}

func TestFinalizePasswordResetChangesPassword(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	sink := &MockActivitySink{}
	codec := testCodec()

	handler := community.NewFinalizePasswordResetHandler(repo, codec).
		WithActivitySink(sink).
		WithLogger(testLogger{})

	userID := uuid.New()
	stored := &community.User{
		ID:           userID,
		Email:        "ada@example.com",
		TokenVersion: 1,
	}
	updated := &community.User{
		ID:           userID,
		Email:        "ada@example.com",
		Confirmed:    true,
		TokenVersion: 2,
	}

	token, err := codec.Issue(userID, community.ActionResetPassword,
		community.WithTokenVersion(stored.TokenVersion))
	require.NoError(t, err)

	repo.On("Users").Return(users)
	users.On("FindByIDTx", mock.Anything, mock.Anything, userID).
		Return(stored, nil).Once()
	users.On("ResetPasswordTx", mock.Anything, mock.Anything, userID, mock.MatchedBy(func(hash string) bool {
		return community.ComparePasswordAndHash("newpassword123", hash) == nil
	})).Return(updated, nil).Once()

	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt community.ActivityEvent) bool {
		return evt.EventType == community.ActivityEventPasswordResetSuccess &&
			evt.UserID == userID.String()
	})).Return(nil).Once()

	err = handler.Execute(ctx, community.FinalizePasswordResetMessage{
		Token:    token,
		Email:    "ada@example.com",
		Password: "newpassword123",
	})
	require.NoError(t, err)

	repo.AssertExpectations(t)
	users.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestFinalizePasswordResetRejectsWrongEmail(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	codec := testCodec()

	handler := community.NewFinalizePasswordResetHandler(repo, codec).
		WithLogger(testLogger{})

	userID := uuid.New()
	stored := &community.User{ID: userID, Email: "ada@example.com"}

	token, err := codec.Issue(userID, community.ActionResetPassword,
		community.WithTokenVersion(0))
	require.NoError(t, err)

	repo.On("Users").Return(users)
	users.On("FindByIDTx", mock.Anything, mock.Anything, userID).
		Return(stored, nil).Once()

	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(nil).Once()

	err = handler.Execute(ctx, community.FinalizePasswordResetMessage{
		Token:    token,
		Email:    "someone-else@example.com",
		Password: "newpassword123",
	})
	require.ErrorIs(t, err, community.ErrUnknownEmail)

	users.AssertNotCalled(t, "ResetPasswordTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalizePasswordResetRejectsStaleTokenVersion(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	codec := testCodec()

	handler := community.NewFinalizePasswordResetHandler(repo, codec).
		WithLogger(testLogger{})

	userID := uuid.New()
	// the stored version moved on after a previous reset consumed it
	stored := &community.User{
		ID:           userID,
		Email:        "ada@example.com",
		TokenVersion: 2,
	}

	token, err := codec.Issue(userID, community.ActionResetPassword,
		community.WithTokenVersion(1))
	require.NoError(t, err)

	repo.On("Users").Return(users)
	users.On("FindByIDTx", mock.Anything, mock.Anything, userID).
		Return(stored, nil).Once()

	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(nil).Once()

	err = handler.Execute(ctx, community.FinalizePasswordResetMessage{
		Token:    token,
		Email:    "ada@example.com",
		Password: "newpassword123",
	})

	var richErr *goerrors.Error
	require.ErrorAs(t, err, &richErr)
	require.Equal(t, goerrors.CategoryConflict, richErr.Category)
	require.Equal(t, "TOKEN_ALREADY_USED", richErr.TextCode)

	users.AssertNotCalled(t, "ResetPasswordTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
