package community

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeTokenExpired   = "TOKEN_EXPIRED"
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
	TextCodeActionMismatch = "TOKEN_ACTION_MISMATCH"
	TextCodeEmailTaken     = "EMAIL_TAKEN"
	TextCodeAlreadyJoined  = "ALREADY_JOINED"
	TextCodeWrongPassword  = "WRONG_PASSWORD"
	TextCodeUnknownEmail   = "UNKNOWN_EMAIL"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrTokenExpired is returned when an action token is older than its max age.
var ErrTokenExpired = errors.New("token has expired", errors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenMalformed is returned for tokens with a bad signature or structure.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryValidation).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeBadRequest)

// ErrActionMismatch is returned when a token decodes cleanly but authorizes a
// different action than the one being attempted.
var ErrActionMismatch = errors.New("token action mismatch", errors.CategoryValidation).
	WithTextCode(TextCodeActionMismatch).
	WithCode(errors.CodeBadRequest)

// ErrEmailTaken is returned when the email is already claimed by another account.
var ErrEmailTaken = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrAlreadyJoined is returned when an invited user already set a password.
var ErrAlreadyJoined = errors.New("account already joined", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyJoined).
	WithCode(errors.CodeConflict)

// ErrWrongPassword is returned when the supplied current password does not match.
var ErrWrongPassword = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeWrongPassword).
	WithCode(errors.CodeUnauthorized)

// ErrUnknownEmail is returned when the submitted email matches no account.
var ErrUnknownEmail = errors.New("unknown email address", errors.CategoryNotFound).
	WithTextCode(TextCodeUnknownEmail).
	WithCode(errors.CodeNotFound)

// ErrMismatchedHashAndPassword wraps bcrypt's mismatch error
var ErrMismatchedHashAndPassword = errors.New("hashed password mismatch", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// ErrTooManyLoginAttempts is returned when a user exceeds the attempt window
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryAuth).
	WithTextCode("TOO_MANY_LOGIN_ATTEMPTS").
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
