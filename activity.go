package credentials

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventAccountLockedOut      ActivityEventType = "auth.account.locked"
	ActivityEventUnlockIssued          ActivityEventType = "auth.account.unlock_issued"
	ActivityEventRecoveryRequested     ActivityEventType = "auth.password.recovery_requested"
	ActivityEventPasswordResetSuccess  ActivityEventType = "auth.password.reset"
	ActivityEventPasswordChanged       ActivityEventType = "auth.password.changed"
	ActivityEventAccountActivated      ActivityEventType = "auth.account.activated"
	ActivityEventActivationResent      ActivityEventType = "auth.account.activation_resent"
	ActivityEventAccountProvisioned    ActivityEventType = "user.provisioned"
	ActivityEventAccountUpdated        ActivityEventType = "user.updated"
	ActivityEventAccountDeleted        ActivityEventType = "user.deleted"
	ActivityEventAccountRestored       ActivityEventType = "user.restored"
	ActivityEventProvisioningAbandoned ActivityEventType = "user.provisioning.failed"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	AccountID  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans events out to every sink, returning the first error.
type MultiActivitySink []ActivitySink

func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func userActor(id string) ActorRef {
	return ActorRef{ID: id, Type: "user"}
}

func systemActor() ActorRef {
	return ActorRef{ID: "system", Type: "system"}
}
