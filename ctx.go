package community

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &ctxKey{"user"}
var sessionCtxKey = &ctxKey{"session"}

type ctxKey struct {
	name string
}

// WithUserContext sets the User in the given context
func WithUserContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// UserFromContext finds the user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithSessionContext sets the Session in the given context
func WithSessionContext(r context.Context, session Session) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext extracts the Session from the standard context
func SessionFromContext(ctx context.Context) (Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(Session)
	return raw, ok
}

// RouterSession extracts the Session the auth middleware stored in the
// router context locals.
func RouterSession(ctx router.Context, key string) (Session, bool) {
	if key == "" {
		key = "session"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	session, ok := raw.(Session)
	return session, ok
}

// SessionRole reads the role carried by the session in the standard
// context, falling back to member.
func SessionRole(ctx context.Context) UserRole {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return RoleMember
	}
	if obj, ok := session.(*SessionObject); ok {
		return obj.Role()
	}
	return RoleMember
}
