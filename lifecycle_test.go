package community_test

import (
	"context"
	"database/sql"
	"testing"

	community "github.com/goliatone/go-community"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestAccountLifecycle walks a member through the whole journey: register,
// confirm the account with the emailed token, log in, and pass the
// unconfirmed gate. Each stage consumes the real artifacts the previous
// stage produced.
func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	codec := testCodec()

	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	dispatcher := &MockDispatcher{}

	repo.On("Users").Return(users)
	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).Return(nil)

	userID := uuid.New()
	account := &community.User{}

	users.On("FindByEmailTx", mock.Anything, mock.Anything, "grace@example.com").
		Return(nil, notFoundErr()).Once()
	users.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			*account = *(args.Get(2).(*community.User))
			account.ID = userID
			account.Role = community.RoleMember
		}).
		Return(account, nil).Once()

	var confirmToken string
	dispatcher.On("Send", mock.Anything, mock.MatchedBy(func(n community.Notification) bool {
		return n.Template == community.TemplateConfirmAccount && n.To == "grace@example.com"
	})).Run(func(args mock.Arguments) {
		confirmToken = args.Get(1).(community.Notification).Token
	}).Return(nil).Once()

	register := community.NewRegisterUserHandler(repo, codec).
		WithDispatcher(dispatcher).
		WithLogger(testLogger{})

	err := register.Execute(ctx, community.RegisterUserMessage{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "Grace@Example.com",
		Password:  "password12345",
	})
	require.NoError(t, err)
	require.NotEmpty(t, confirmToken)
	require.False(t, account.Confirmed)
	require.NotEmpty(t, account.PasswordHash)

	users.On("FindByIDTx", mock.Anything, mock.Anything, userID).
		Return(account, nil).Once()
	users.On("ConfirmAccountTx", mock.Anything, mock.Anything, userID).
		Run(func(mock.Arguments) { account.Confirmed = true }).
		Return(account, nil).Once()

	confirm := community.NewConfirmAccountHandler(repo, codec).
		WithLogger(testLogger{})

	var confirmRes *community.ConfirmAccountResponse
	err = confirm.Execute(ctx, community.ConfirmAccountMessage{
		Token: confirmToken,
		OnResponse: func(resp *community.ConfirmAccountResponse) {
			confirmRes = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, confirmRes)
	require.False(t, confirmRes.AlreadyConfirmed)
	require.True(t, account.Confirmed)

	tracker := &MockUserTracker{}
	tracker.On("GetByIdentifier", mock.Anything, "grace@example.com").
		Return(account, nil).Once()
	tracker.On("TrackSuccessfulLogin", mock.Anything, account).
		Return(nil).Once()

	auther := community.NewAuthenticator(community.NewUserProvider(tracker), testConfig{}).
		WithLogger(testLogger{})

	sessionToken, err := auther.Login(ctx, "grace@example.com", "password12345")
	require.NoError(t, err)

	session, err := auther.SessionFromToken(sessionToken)
	require.NoError(t, err)
	require.Equal(t, userID.String(), session.GetUserID())
	require.Equal(t, "grace@example.com", session.GetEmail())
	require.True(t, session.IsConfirmed())

	decision := community.Gate(true, session.IsConfirmed(), community.EndpointGeneral)
	require.Equal(t, community.GateAllow, decision)

	repo.AssertExpectations(t)
	users.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
	tracker.AssertExpectations(t)
}
