package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/queue"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Queue: "default", Type: task.Type()}, nil
}

func testAccount() *credentials.Account {
	return &credentials.Account{
		ID:        uuid.New(),
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Smith",
	}
}

func TestNotifierEnqueuesTaskPerKind(t *testing.T) {
	ctx := context.Background()
	enq := &recordingEnqueuer{}
	n := queue.NewNotifier(enq, "https://app.example.com/", nil)
	account := testAccount()

	require.NoError(t, n.SendAccountCreated(ctx, account, "s1"))
	require.NoError(t, n.SendPasswordRecovery(ctx, account, "s2"))
	require.NoError(t, n.SendAccountUnlock(ctx, account, "s3"))

	require.Len(t, enq.tasks, 3)
	assert.Equal(t, queue.TypeAccountCreated, enq.tasks[0].Type())
	assert.Equal(t, queue.TypePasswordRecovery, enq.tasks[1].Type())
	assert.Equal(t, queue.TypeAccountUnlock, enq.tasks[2].Type())

	var msg queue.Message
	require.NoError(t, json.Unmarshal(enq.tasks[1].Payload(), &msg))
	assert.Equal(t, account.ID.String(), msg.AccountID)
	assert.Equal(t, "alice@example.com", msg.Email)
	assert.Equal(t, "Alice Smith", msg.Name)
	assert.Equal(t, credentials.Link("https://app.example.com", credentials.RecoveryPath, account, "s2"), msg.Link)
}

func TestNotifierReturnsEnqueueError(t *testing.T) {
	enq := &recordingEnqueuer{err: errors.New("redis down")}
	n := queue.NewNotifier(enq, "https://app.example.com", nil)

	err := n.SendAccountCreated(context.Background(), testAccount(), "secret")
	assert.EqualError(t, err, "redis down")
}

func TestServeMuxDispatchesToDeliverer(t *testing.T) {
	var (
		gotType string
		gotMsg  queue.Message
	)
	mux := queue.NewServeMux(queue.DelivererFunc(func(_ context.Context, taskType string, msg queue.Message) error {
		gotType = taskType
		gotMsg = msg
		return nil
	}), nil)

	payload, err := json.Marshal(queue.Message{AccountID: "42", Email: "bob@example.com", Link: "https://x/y"})
	require.NoError(t, err)

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(queue.TypeAccountUnlock, payload)))
	assert.Equal(t, queue.TypeAccountUnlock, gotType)
	assert.Equal(t, "bob@example.com", gotMsg.Email)
}

func TestServeMuxSkipsRetryOnBadPayload(t *testing.T) {
	mux := queue.NewServeMux(queue.LogDeliverer{}, nil)

	err := mux.ProcessTask(context.Background(), asynq.NewTask(queue.TypeAccountCreated, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestServeMuxPropagatesDeliveryError(t *testing.T) {
	boom := errors.New("smtp unavailable")
	mux := queue.NewServeMux(queue.DelivererFunc(func(context.Context, string, queue.Message) error {
		return boom
	}), nil)

	payload, _ := json.Marshal(queue.Message{Email: "a@b.c"})
	err := mux.ProcessTask(context.Background(), asynq.NewTask(queue.TypePasswordRecovery, payload))
	assert.ErrorIs(t, err, boom)
}
