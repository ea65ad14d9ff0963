package activitymap

import (
	"context"

	"github.com/goliatone/go-credentials"
)

// LogSink writes audit records to a logger. Warnings are logged at warn
// level, everything else at info. It never returns an error.
func LogSink(logger credentials.Logger, opts ...Option) credentials.ActivitySink {
	_, logger = credentials.ResolveLogger("credentials.activity", nil, logger)
	m := newMapper(opts)

	return credentials.ActivitySinkFunc(func(ctx context.Context, event credentials.ActivityEvent) error {
		rec := m.mapEvent(event)
		args := []any{
			"category", rec.Category,
			"action", rec.Action,
			"severity", rec.Severity,
			"actor_id", rec.ActorID,
			"actor_type", rec.ActorType,
			"account_id", rec.AccountID,
			"channel", rec.Channel,
			"metadata", rec.Metadata,
		}

		lgr := logger.WithContext(ctx)
		if rec.Severity == SeverityWarning {
			lgr.Warn("activity", args...)
			return nil
		}
		lgr.Info("activity", args...)
		return nil
	})
}
