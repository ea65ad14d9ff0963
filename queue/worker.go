package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-credentials"
	"github.com/hibiken/asynq"
)

// Deliverer sends a notification to its recipient, typically by email.
type Deliverer interface {
	Deliver(ctx context.Context, taskType string, msg Message) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, taskType string, msg Message) error

func (f DelivererFunc) Deliver(ctx context.Context, taskType string, msg Message) error {
	return f(ctx, taskType, msg)
}

// LogDeliverer logs notifications instead of sending them.
type LogDeliverer struct {
	Logger credentials.Logger
}

func (d LogDeliverer) Deliver(ctx context.Context, taskType string, msg Message) error {
	_, logger := credentials.ResolveLogger("credentials.queue", nil, d.Logger)
	logger.WithContext(ctx).Info("notification delivered (log only)",
		"type", taskType,
		"email", msg.Email,
		"link", msg.Link,
	)
	return nil
}

// NewServeMux registers a handler for every notification task type.
func NewServeMux(deliverer Deliverer, logger credentials.Logger) *asynq.ServeMux {
	_, logger = credentials.ResolveLogger("credentials.queue", nil, logger)

	mux := asynq.NewServeMux()
	for _, taskType := range []string{TypeAccountCreated, TypePasswordRecovery, TypeAccountUnlock} {
		mux.HandleFunc(taskType, handler(deliverer, logger))
	}
	return mux
}

func handler(deliverer Deliverer, logger credentials.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var msg Message
		if err := json.Unmarshal(t.Payload(), &msg); err != nil {
			logger.Error("notification payload invalid", "type", t.Type(), "error", err)
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}

		if err := deliverer.Deliver(ctx, t.Type(), msg); err != nil {
			logger.Warn("notification delivery failed", "type", t.Type(), "account_id", msg.AccountID, "error", err)
			return err
		}
		return nil
	}
}

// Worker runs the asynq server for notification tasks.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewWorker creates a worker. Call Run or Start to begin processing.
func NewWorker(redisOpt asynq.RedisConnOpt, concurrency int, deliverer Deliverer, logger credentials.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 2
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		LogLevel:    asynq.InfoLevel,
	})
	return &Worker{srv: srv, mux: NewServeMux(deliverer, logger)}
}

// Run blocks until the process receives an exit signal.
func (w *Worker) Run() error {
	return w.srv.Run(w.mux)
}

// Start processes tasks in the background until Shutdown is called.
func (w *Worker) Start() error {
	return w.srv.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}
