package credentials

import (
	"context"
	"net/url"
	"strings"
)

const (
	ActivationPath = "/account/activate"
	RecoveryPath   = "/account/reset"
	UnlockPath     = "/account/unlock"
)

// Link builds the user facing URL carrying the account id and secret.
func Link(baseURL, path string, account *Account, secret string) string {
	q := url.Values{}
	q.Set("key", account.ID.String())
	q.Set("secret", secret)
	return strings.TrimRight(baseURL, "/") + path + "?" + q.Encode()
}

// LogNotifier writes the links it would deliver to the logger. It is meant
// for development and as the fallback when no notifier is configured.
type LogNotifier struct {
	baseURL string
	logger  Logger
}

// NewLogNotifier creates a notifier that logs links rooted at baseURL.
func NewLogNotifier(baseURL string, logger Logger) *LogNotifier {
	_, logger = ResolveLogger("credentials.notifier", nil, logger)
	return &LogNotifier{baseURL: baseURL, logger: logger}
}

func (n *LogNotifier) SendAccountCreated(ctx context.Context, account *Account, secret string) error {
	return n.send(ctx, "account created", ActivationPath, account, secret)
}

func (n *LogNotifier) SendPasswordRecovery(ctx context.Context, account *Account, secret string) error {
	return n.send(ctx, "password recovery", RecoveryPath, account, secret)
}

func (n *LogNotifier) SendAccountUnlock(ctx context.Context, account *Account, secret string) error {
	return n.send(ctx, "account unlock", UnlockPath, account, secret)
}

func (n *LogNotifier) send(ctx context.Context, kind, path string, account *Account, secret string) error {
	n.logger.WithContext(ctx).Info("notification",
		"kind", kind,
		"email", account.Email,
		"link", Link(n.baseURL, path, account, secret),
	)
	return nil
}

func normalizeNotifier(n Notifier, logger Logger) Notifier {
	if n == nil {
		return NewLogNotifier("", logger)
	}
	return n
}

var _ Notifier = (*LogNotifier)(nil)
