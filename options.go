package credentials

import (
	"context"
	"time"
)

// Option configures the lifecycle components. The same options can be
// handed to every constructor so they share collaborators.
type Option func(*runtime)

// WithLogger sets the fallback logger.
func WithLogger(logger Logger) Option {
	return func(r *runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLoggerProvider sets the provider used to name component loggers.
func WithLoggerProvider(provider LoggerProvider) Option {
	return func(r *runtime) {
		r.provider = provider
	}
}

// WithActivitySink sets the sink used to emit lifecycle events.
func WithActivitySink(sink ActivitySink) Option {
	return func(r *runtime) {
		r.activity = normalizeActivitySink(sink)
	}
}

// WithLocker replaces the in process account locker.
func WithLocker(locker AccountLocker) Option {
	return func(r *runtime) {
		if locker != nil {
			r.locker = locker
		}
	}
}

// WithPasswordHasher replaces the bcrypt hasher.
func WithPasswordHasher(hasher PasswordHasher) Option {
	return func(r *runtime) {
		if hasher != nil {
			r.hasher = hasher
		}
	}
}

// WithPasswordPolicy replaces DefaultPasswordPolicy.
func WithPasswordPolicy(policy PasswordPolicy) Option {
	return func(r *runtime) {
		if policy != nil {
			r.policy = policy
		}
	}
}

// WithClock overrides time.Now for lockout and token expiry.
func WithClock(now func() time.Time) Option {
	return func(r *runtime) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSecretGenerator overrides how token secrets are produced.
func WithSecretGenerator(fn func() (string, error)) Option {
	return func(r *runtime) {
		if fn != nil {
			r.secrets = fn
		}
	}
}

type runtime struct {
	cfg      Config
	logger   Logger
	provider LoggerProvider
	activity ActivitySink
	locker   AccountLocker
	hasher   PasswordHasher
	policy   PasswordPolicy
	now      func() time.Time
	secrets  func() (string, error)
	codec    *TokenCodec
	lockout  LockoutPolicy
}

func newRuntime(name string, cfg Config, opts []Option) *runtime {
	r := &runtime{
		cfg:      normalizeConfig(cfg),
		activity: noopActivitySink{},
		locker:   sharedLocker,
		hasher:   NewBcryptHasher(),
		policy:   DefaultPasswordPolicy(),
		now:      time.Now,
		secrets:  NewSecret,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.provider, r.logger = ResolveLogger(name, r.provider, r.logger)
	r.codec = NewTokenCodec(r.cfg, WithTokenClock(r.now), WithTokenSecretGenerator(r.secrets))
	r.lockout = NewLockoutPolicy(r.cfg)
	return r
}

func (r *runtime) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.GetOperationTimeout())
}

func (r *runtime) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}
	if err := normalizeActivitySink(r.activity).Record(ctx, event); err != nil {
		r.logger.Warn("activity sink error", "event", string(event.EventType), "error", err)
	}
}
