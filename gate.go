package community

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-router"
)

// EndpointCategory classifies a request target for the unconfirmed gate.
type EndpointCategory int

const (
	// EndpointGeneral is any application endpoint outside the account
	// area: directory pages, resources, profiles.
	EndpointGeneral EndpointCategory = iota
	// EndpointAccount covers the account area itself (confirm, resend,
	// logout, unconfirmed notice). Blocking these would strand an
	// unconfirmed user with no way out.
	EndpointAccount
	// EndpointStatic covers static assets.
	EndpointStatic
)

// GateDecision is the outcome of the unconfirmed gate.
type GateDecision int

const (
	// GateAllow lets the request through.
	GateAllow GateDecision = iota
	// GateRedirectUnconfirmed sends the user to the unconfirmed notice
	// page.
	GateRedirectUnconfirmed
)

// Gate decides whether a request may proceed given the caller's
// authentication state. Anonymous users pass: routes that need a login are
// protected separately. Confirmed users pass everywhere. An authenticated
// but unconfirmed user is only allowed into the account area and static
// assets; everything else redirects to the unconfirmed notice.
func Gate(authenticated, confirmed bool, category EndpointCategory) GateDecision {
	if !authenticated || confirmed {
		return GateAllow
	}

	switch category {
	case EndpointAccount, EndpointStatic:
		return GateAllow
	default:
		return GateRedirectUnconfirmed
	}
}

// CategorizePath maps a request path onto an EndpointCategory using the
// account area prefix, e.g. "/account".
func CategorizePath(path, accountPrefix string) EndpointCategory {
	switch {
	case strings.HasPrefix(path, accountPrefix):
		return EndpointAccount
	case strings.HasPrefix(path, "/static"):
		return EndpointStatic
	default:
		return EndpointGeneral
	}
}

// UnconfirmedGate is the router middleware form of Gate. It reads the
// session the authentication middleware stored in locals and redirects
// unconfirmed users to the configured notice route.
type UnconfirmedGate struct {
	cfg           Config
	accountPrefix string
	Logger        Logger
}

// NewUnconfirmedGate builds the gate middleware. accountPrefix is the path
// prefix of the account area, which stays reachable while unconfirmed.
func NewUnconfirmedGate(cfg Config, accountPrefix string) *UnconfirmedGate {
	if accountPrefix == "" {
		accountPrefix = "/account"
	}

	return &UnconfirmedGate{
		cfg:           cfg,
		accountPrefix: accountPrefix,
		Logger:        defLogger{},
	}
}

// Middleware returns the router.MiddlewareFunc enforcing the gate.
func (g *UnconfirmedGate) Middleware() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			session, ok := ctx.Locals(g.cfg.GetContextKey()).(Session)

			decision := Gate(
				ok && session != nil,
				ok && session != nil && session.IsConfirmed(),
				CategorizePath(ctx.Path(), g.accountPrefix),
			)

			if decision == GateAllow {
				return hf(ctx)
			}

			g.Logger.Info("unconfirmed account gated from %s", ctx.Path())

			statusCode := http.StatusSeeOther
			if ctx.Method() == string(router.GET) {
				statusCode = http.StatusFound
			}

			return ctx.Redirect(g.cfg.GetUnconfirmedRoute(), statusCode)
		}
	}
}
