// Package queue delivers account notifications through asynq. The Notifier
// enqueues tasks from request paths and the Worker hands them to a
// Deliverer out of band.
package queue

import (
	"context"
	"encoding/json"

	"github.com/goliatone/go-credentials"
	"github.com/hibiken/asynq"
)

const (
	TypeAccountCreated   = "credentials:account_created"
	TypePasswordRecovery = "credentials:password_recovery"
	TypeAccountUnlock    = "credentials:account_unlock"
)

// Message is the payload carried by every notification task.
type Message struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Link      string `json:"link"`
}

// Enqueuer is the part of asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier implements credentials.Notifier by enqueuing one task per
// notification. Secrets only travel inside the link.
type Notifier struct {
	client  Enqueuer
	baseURL string
	opts    []asynq.Option
	logger  credentials.Logger
}

// NewNotifier creates a notifier that builds links rooted at baseURL.
func NewNotifier(client Enqueuer, baseURL string, logger credentials.Logger, opts ...asynq.Option) *Notifier {
	_, logger = credentials.ResolveLogger("credentials.queue", nil, logger)
	return &Notifier{
		client:  client,
		baseURL: baseURL,
		opts:    opts,
		logger:  logger,
	}
}

func (n *Notifier) SendAccountCreated(ctx context.Context, account *credentials.Account, secret string) error {
	return n.enqueue(ctx, TypeAccountCreated, credentials.ActivationPath, account, secret)
}

func (n *Notifier) SendPasswordRecovery(ctx context.Context, account *credentials.Account, secret string) error {
	return n.enqueue(ctx, TypePasswordRecovery, credentials.RecoveryPath, account, secret)
}

func (n *Notifier) SendAccountUnlock(ctx context.Context, account *credentials.Account, secret string) error {
	return n.enqueue(ctx, TypeAccountUnlock, credentials.UnlockPath, account, secret)
}

func (n *Notifier) enqueue(ctx context.Context, taskType, path string, account *credentials.Account, secret string) error {
	payload, err := json.Marshal(Message{
		AccountID: account.ID.String(),
		Email:     account.Email,
		Name:      account.FullName(),
		Link:      credentials.Link(n.baseURL, path, account, secret),
	})
	if err != nil {
		return err
	}

	info, err := n.client.EnqueueContext(ctx, asynq.NewTask(taskType, payload), n.opts...)
	if err != nil {
		n.logger.Warn("enqueue notification failed", "type", taskType, "account_id", account.ID.String(), "error", err)
		return err
	}

	n.logger.Debug("notification enqueued", "type", taskType, "task_id", info.ID, "queue", info.Queue)
	return nil
}

var _ credentials.Notifier = (*Notifier)(nil)
