// Package community implements the account lifecycle for a community web
// application: registration, email confirmation, password reset, password
// and email changes, and invite onboarding.
//
// Action tokens:
//   - TokenCodec issues and decodes signed, expiring tokens scoped to one
//     Action (confirm-account, reset-password, change-email, invite,
//     session). Tokens carry the issue time only; age is evaluated against
//     the codec's max age at decode time. Sensitive tokens additionally pin
//     the user's token version so consuming one invalidates its siblings.
//
// Lifecycle commands:
//   - Each operation is a command handler (RegisterUserHandler,
//     ConfirmAccountHandler, the password reset pair, the email change pair,
//     the invite pair) executing against the Users repository inside a
//     database transaction. Notifications dispatch after commit, best
//     effort, so a mail outage never rolls back account state.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the handlers and
//     the Auther to describe registration, login, and account change events.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking the flow.
//
// Access gate:
//   - Gate is the pure decision for unconfirmed accounts: authenticated but
//     unconfirmed users are confined to the account area and static assets.
//     UnconfirmedGate wraps it as router middleware.
package community
