package community_test

import (
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	community "github.com/goliatone/go-community"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRouterSession(t *testing.T) {
	t.Run("returns stored session", func(t *testing.T) {
		session := &community.SessionObject{UserID: "abc", Confirmed: true}

		ctx := &MockContext{}
		ctx.On("Locals", "session").Return(session)

		got, err := community.GetRouterSession(ctx, "session")
		require.NoError(t, err)
		assert.Equal(t, "abc", got.GetUserID())
	})

	t.Run("missing session", func(t *testing.T) {
		ctx := &MockContext{}
		ctx.On("Locals", "session").Return(nil)

		_, err := community.GetRouterSession(ctx, "session")
		require.ErrorIs(t, err, community.ErrUnableToFindSession)
	})

	t.Run("wrong type in locals", func(t *testing.T) {
		ctx := &MockContext{}
		ctx.On("Locals", "session").Return("not a session")

		_, err := community.GetRouterSession(ctx, "session")
		require.ErrorIs(t, err, community.ErrUnableToDecodeSession)
	})
}

func TestRegistrationCreatePayloadValidate(t *testing.T) {
	valid := community.RegistrationCreatePayload{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "ada@example.com",
		Password:        "password12345",
		ConfirmPassword: "password12345",
	}

	t.Run("valid payload", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("mismatched confirmation", func(t *testing.T) {
		payload := valid
		payload.ConfirmPassword = "something else!"

		err := payload.Validate()
		require.Error(t, err)

		errs := community.FormatValidationErrorToMap(err)
		assert.Contains(t, errs, "confirm_password")
	})

	t.Run("bad email", func(t *testing.T) {
		payload := valid
		payload.Email = "not-an-email"

		err := payload.Validate()
		require.Error(t, err)

		errs := community.FormatValidationErrorToMap(err)
		assert.Contains(t, errs, "email")
	})

	t.Run("short password", func(t *testing.T) {
		payload := valid
		payload.Password = "short"
		payload.ConfirmPassword = "short"

		require.Error(t, payload.Validate())
	})
}

func TestPasswordResetVerifyPayloadValidate(t *testing.T) {
	valid := community.PasswordResetVerifyPayload{
		Stage:           string(community.ChangingPassword),
		Email:           "ada@example.com",
		Password:        "password12345",
		ConfirmPassword: "password12345",
	}

	t.Run("valid payload", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("unknown stage", func(t *testing.T) {
		payload := valid
		payload.Stage = "bogus"
		require.Error(t, payload.Validate())
	})
}

func TestValidateStringEquals(t *testing.T) {
	rule := community.ValidateStringEquals("expected")

	assert.NoError(t, rule("expected"))
	assert.Error(t, rule("other"))
	assert.Error(t, rule(42))
}

func TestFormatValidationErrorToMap(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Empty(t, community.FormatValidationErrorToMap(nil))
	})

	t.Run("flattens field errors", func(t *testing.T) {
		verrs := validation.Errors{
			"email":    errors.New("must be a valid email address"),
			"password": errors.New("the length must be between 10 and 100"),
		}

		out := community.FormatValidationErrorToMap(verrs)
		assert.Equal(t, "must be a valid email address", out["email"])
		assert.Equal(t, "the length must be between 10 and 100", out["password"])
	})

	t.Run("plain error lands under error key", func(t *testing.T) {
		out := community.FormatValidationErrorToMap(errors.New("boom"))
		assert.Equal(t, "boom", out["error"])
	})
}
