package credentials

import (
	"context"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// LocalLocker serializes per account work inside one process.
type LocalLocker struct {
	slots *xsync.MapOf[string, chan struct{}]
}

// NewLocalLocker returns an empty in process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: xsync.NewMapOf[string, chan struct{}]()}
}

// Lock blocks until the account is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	slot, _ := l.slots.LoadOrCompute(id.String(), func() chan struct{} {
		return make(chan struct{}, 1)
	})

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, cancelled(ctx, "account lock acquisition")
	}
}

// components built without an explicit locker share this one
var sharedLocker = NewLocalLocker()

var _ AccountLocker = (*LocalLocker)(nil)
