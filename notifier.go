package community

import (
	"context"
)

// TemplateKey selects the outbound email template a dispatcher should render.
type TemplateKey string

const (
	TemplateConfirmAccount TemplateKey = "account/email/confirm"
	TemplateResetPassword  TemplateKey = "account/email/reset_password"
	TemplateChangeEmail    TemplateKey = "account/email/change_email"
	TemplateInvite         TemplateKey = "account/email/invite"
)

// Notification is the payload handed to a NotificationDispatcher. The token
// is the URL-safe action token the recipient must follow.
type Notification struct {
	To       string
	Template TemplateKey
	User     *User
	Token    string
	Context  map[string]any
}

// NotificationDispatcher delivers account emails. Delivery is best effort:
// lifecycle handlers log dispatcher errors and never roll back the state
// change that preceded the send.
type NotificationDispatcher interface {
	Send(ctx context.Context, notification Notification) error
}

// NotificationDispatcherFunc adapts a function to the NotificationDispatcher interface.
type NotificationDispatcherFunc func(ctx context.Context, notification Notification) error

// Send implements NotificationDispatcher.
func (f NotificationDispatcherFunc) Send(ctx context.Context, notification Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, notification)
}

type noopDispatcher struct{}

func (noopDispatcher) Send(context.Context, Notification) error {
	return nil
}

func normalizeDispatcher(d NotificationDispatcher) NotificationDispatcher {
	if d == nil {
		return noopDispatcher{}
	}
	return d
}

// LogDispatcher writes notifications to the logger instead of sending email.
// Useful in development and as a default while wiring a real sender.
type LogDispatcher struct {
	Logger Logger
}

// Send implements NotificationDispatcher.
func (d LogDispatcher) Send(_ context.Context, n Notification) error {
	logger := d.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("notification to=%s template=%s token=%s", n.To, n.Template, n.Token)
	return nil
}
