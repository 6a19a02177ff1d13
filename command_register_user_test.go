package community_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	community "github.com/goliatone/go-community"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

func testCodec() *community.TokenCodec {
	return community.NewTokenCodec([]byte("test-signing-key"), time.Hour, "test", testLogger{})
}

func notFoundErr() error {
	return community.ErrIdentityNotFound
}

func TestRegisterUserHandlerCreatesUnconfirmedAccount(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	dispatcher := &MockDispatcher{}
	sink := &MockActivitySink{}

	handler := community.NewRegisterUserHandler(repo, testCodec()).
		WithDispatcher(dispatcher).
		WithActivitySink(sink).
		WithLogger(testLogger{})

	created := &community.User{
		ID:    uuid.New(),
		Email: "ada@example.com",
	}

	var res *community.RegisterUserResponse
	event := community.RegisterUserMessage{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "Ada@Example.com",
		Password:  "password12345",
		OnResponse: func(resp *community.RegisterUserResponse) {
			res = resp
		},
	}

	repo.On("Users").Return(users)

	// intake normalizes the address before any lookup
	users.On("FindByEmailTx", mock.Anything, mock.Anything, "ada@example.com").
		Return(nil, notFoundErr()).Once()
	users.On("CreateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(u *community.User) bool {
		return u.Email == "ada@example.com" && u.PasswordHash != "" && !u.Confirmed
	})).Return(created, nil).Once()

	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(nil).Once()

	dispatcher.On("Send", mock.Anything, mock.MatchedBy(func(n community.Notification) bool {
		return n.To == created.Email &&
			n.Template == community.TemplateConfirmAccount &&
			n.Token != ""
	})).Return(nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt community.ActivityEvent) bool {
		return evt.EventType == community.ActivityEventUserRegistered &&
			evt.UserID == created.ID.String()
	})).Return(nil).Once()

	err := handler.Execute(ctx, event)
	require.NoError(t, err)

	require.NotNil(t, res)
	require.Equal(t, created, res.User)
	require.NotEmpty(t, res.Token)

	claims, err := testCodec().Decode(res.Token, community.ActionConfirmAccount)
	require.NoError(t, err)
	subject, err := claims.SubjectUUID()
	require.NoError(t, err)
	require.Equal(t, created.ID, subject)

	repo.AssertExpectations(t)
	users.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestRegisterUserHandlerRejectsTakenEmail(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	dispatcher := &MockDispatcher{}

	handler := community.NewRegisterUserHandler(repo, testCodec()).
		WithDispatcher(dispatcher).
		WithLogger(testLogger{})

	event := community.RegisterUserMessage{
		Email:    "taken@example.com",
		Password: "password12345",
	}

	repo.On("Users").Return(users)
	users.On("FindByEmailTx", mock.Anything, mock.Anything, event.Email).
		Return(&community.User{ID: uuid.New(), Email: event.Email}, nil).Once()

	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(nil).Once()

	err := handler.Execute(ctx, event)
	require.ErrorIs(t, err, community.ErrEmailTaken)

	dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestRegisterUserHandlerSurvivesDispatchFailure(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	dispatcher := &MockDispatcher{}

	handler := community.NewRegisterUserHandler(repo, testCodec()).
		WithDispatcher(dispatcher).
		WithLogger(testLogger{})

	created := &community.User{ID: uuid.New(), Email: "ada@example.com"}

	repo.On("Users").Return(users)
	users.On("FindByEmailTx", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, notFoundErr()).Once()
	users.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).
		Return(created, nil).Once()

	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(nil).Once()

	dispatcher.On("Send", mock.Anything, mock.Anything).
		Return(community.ErrNoEmptyString).Once()

	// a failed notification must never fail the registration
	err := handler.Execute(ctx, community.RegisterUserMessage{
		Email:    "ada@example.com",
		Password: "password12345",
	})
	require.NoError(t, err)

	repo.AssertExpectations(t)
	users.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}
