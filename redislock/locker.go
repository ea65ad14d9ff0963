// Package redislock serializes per account mutations across processes using
// a Redis key per account.
package redislock

import (
	"context"
	"time"

	"github.com/goliatone/go-credentials"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL       = 30 * time.Second
	DefaultRetry     = 25 * time.Millisecond
	defaultKeyPrefix = "credentials:lock:"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements credentials.AccountLocker. A lock expires after its
// TTL so a crashed holder cannot block an account forever.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger credentials.Logger
}

// Option customizes a Locker.
type Option func(*Locker)

func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.retry = d
		}
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(l *Locker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

func WithLogger(logger credentials.Logger) Option {
	return func(l *Locker) {
		l.logger = logger
	}
}

// New creates a locker backed by client.
func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		ttl:    DefaultTTL,
		retry:  DefaultRetry,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	_, l.logger = credentials.ResolveLogger("credentials.redislock", nil, l.logger)
	return l
}

// Lock blocks until the account lock is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	key := l.prefix + id.String()
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("release account lock failed", "key", key, "error", err)
	}
}

var _ credentials.AccountLocker = (*Locker)(nil)
