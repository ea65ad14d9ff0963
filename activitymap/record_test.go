package activitymap_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/activitymap"
)

func TestMapClassifiesEvents(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := credentials.ActivityEvent{
		EventType:  credentials.ActivityEventAccountLockedOut,
		Actor:      credentials.ActorRef{ID: "account-100", Type: "user"},
		AccountID:  "account-100",
		Metadata:   map[string]any{"failed_count": 5},
		OccurredAt: ts,
	}

	rec := activitymap.Map(event)

	if rec.Category != activitymap.CategoryLogin {
		t.Fatalf("expected category login, got %q", rec.Category)
	}
	if rec.Action != "locked" {
		t.Fatalf("expected action locked, got %q", rec.Action)
	}
	if rec.Severity != activitymap.SeverityWarning {
		t.Fatalf("expected severity warning, got %q", rec.Severity)
	}
	if rec.ActorType != "user" || rec.AccountID != "account-100" {
		t.Fatalf("unexpected actor/account: %+v", rec)
	}
	if rec.Channel != "credentials" {
		t.Fatalf("expected channel credentials, got %q", rec.Channel)
	}
	if !rec.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, rec.OccurredAt)
	}
	if rec.Metadata["failed_count"] != 5 {
		t.Fatalf("expected metadata to be carried, got %#v", rec.Metadata)
	}

	rec.Metadata["failed_count"] = 0
	if event.Metadata["failed_count"] != 5 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestMapCategories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event    credentials.ActivityEventType
		category activitymap.Category
		action   string
	}{
		{credentials.ActivityEventLoginSuccess, activitymap.CategoryLogin, "success"},
		{credentials.ActivityEventPasswordResetSuccess, activitymap.CategoryPassword, "reset"},
		{credentials.ActivityEventUnlockIssued, activitymap.CategoryAccount, "unlock_issued"},
		{credentials.ActivityEventProvisioningAbandoned, activitymap.CategoryProvisioning, "failed"},
		{credentials.ActivityEventType("custom"), activitymap.CategoryOther, "custom"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(string(tc.event), func(t *testing.T) {
			t.Parallel()

			rec := activitymap.Map(credentials.ActivityEvent{EventType: tc.event})
			if rec.Category != tc.category {
				t.Fatalf("expected category %q, got %q", tc.category, rec.Category)
			}
			if rec.Action != tc.action {
				t.Fatalf("expected action %q, got %q", tc.action, rec.Action)
			}
		})
	}
}

func TestMapOptions(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rec := activitymap.Map(
		credentials.ActivityEvent{EventType: credentials.ActivityEventLoginFailure},
		activitymap.WithChannel("security"),
		activitymap.WithClock(func() time.Time { return fixed }),
		activitymap.WithSeverity(credentials.ActivityEventLoginFailure, activitymap.SeverityWarning),
	)

	if rec.Channel != "security" {
		t.Fatalf("expected channel security, got %q", rec.Channel)
	}
	if !rec.OccurredAt.Equal(fixed) {
		t.Fatalf("expected occurred_at from clock, got %v", rec.OccurredAt)
	}
	if rec.Severity != activitymap.SeverityWarning {
		t.Fatalf("expected overridden severity, got %q", rec.Severity)
	}
}

func TestMapActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  credentials.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses actor id when present",
			event:  credentials.ActivityEvent{Actor: credentials.ActorRef{ID: "admin-1"}, AccountID: "account-1"},
			expect: "admin-1",
		},
		{
			name:   "uses account id when actor id missing",
			event:  credentials.ActivityEvent{AccountID: "account-2"},
			expect: "account-2",
		},
		{
			name:   "uses default fallback",
			event:  credentials.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "uses configured fallback",
			event:  credentials.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("seeder")},
			expect: "seeder",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := activitymap.Map(tc.event, tc.opts...)
			if rec.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, rec.ActorID)
			}
		})
	}
}

type levelLogger struct {
	mu     sync.Mutex
	levels []string
}

func (l *levelLogger) add(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels = append(l.levels, level)
}

func (l *levelLogger) Trace(string, ...any) { l.add("trace") }
func (l *levelLogger) Debug(string, ...any) { l.add("debug") }
func (l *levelLogger) Info(string, ...any)  { l.add("info") }
func (l *levelLogger) Warn(string, ...any)  { l.add("warn") }
func (l *levelLogger) Error(string, ...any) { l.add("error") }
func (l *levelLogger) Fatal(string, ...any) { l.add("fatal") }
func (l *levelLogger) WithContext(context.Context) credentials.Logger {
	return l
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	logger := &levelLogger{}
	sink := activitymap.LogSink(logger)
	ctx := context.Background()

	if err := sink.Record(ctx, credentials.ActivityEvent{EventType: credentials.ActivityEventLoginSuccess}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := sink.Record(ctx, credentials.ActivityEvent{EventType: credentials.ActivityEventAccountLockedOut}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(logger.levels) != 2 || logger.levels[0] != "info" || logger.levels[1] != "warn" {
		t.Fatalf("expected info then warn, got %v", logger.levels)
	}
}

func TestLogSinkWithoutLogger(t *testing.T) {
	t.Parallel()

	sink := activitymap.LogSink(nil)
	if err := sink.Record(context.Background(), credentials.ActivityEvent{EventType: credentials.ActivityEventLoginSuccess}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
