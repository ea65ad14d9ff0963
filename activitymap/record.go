// Package activitymap turns credential lifecycle events into flat audit
// records that log pipelines and external activity stores can index.
package activitymap

import (
	"strings"
	"time"

	"github.com/goliatone/go-credentials"
)

// Severity ranks how much attention an audit record deserves.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityNotice  Severity = "notice"
	SeverityWarning Severity = "warning"
)

// Category groups event types by the part of the lifecycle they touch.
type Category string

const (
	CategoryLogin        Category = "login"
	CategoryPassword     Category = "password"
	CategoryAccount      Category = "account"
	CategoryProvisioning Category = "provisioning"
	CategoryOther        Category = "other"
)

const (
	defaultChannel = "credentials"
	defaultActorID = "system"
)

// Record is the audit shape of one credentials.ActivityEvent.
type Record struct {
	Category   Category       `json:"category"`
	Action     string         `json:"action"`
	Severity   Severity       `json:"severity"`
	ActorID    string         `json:"actor_id"`
	ActorType  string         `json:"actor_type,omitempty"`
	AccountID  string         `json:"account_id,omitempty"`
	Channel    string         `json:"channel"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type classification struct {
	category Category
	severity Severity
}

var classifications = map[credentials.ActivityEventType]classification{
	credentials.ActivityEventLoginSuccess:          {CategoryLogin, SeverityInfo},
	credentials.ActivityEventLoginFailure:          {CategoryLogin, SeverityNotice},
	credentials.ActivityEventAccountLockedOut:      {CategoryLogin, SeverityWarning},
	credentials.ActivityEventRecoveryRequested:     {CategoryPassword, SeverityInfo},
	credentials.ActivityEventPasswordResetSuccess:  {CategoryPassword, SeverityNotice},
	credentials.ActivityEventPasswordChanged:       {CategoryPassword, SeverityNotice},
	credentials.ActivityEventUnlockIssued:          {CategoryAccount, SeverityNotice},
	credentials.ActivityEventAccountActivated:      {CategoryAccount, SeverityInfo},
	credentials.ActivityEventActivationResent:      {CategoryAccount, SeverityInfo},
	credentials.ActivityEventAccountProvisioned:    {CategoryProvisioning, SeverityInfo},
	credentials.ActivityEventAccountUpdated:        {CategoryProvisioning, SeverityInfo},
	credentials.ActivityEventAccountDeleted:        {CategoryProvisioning, SeverityNotice},
	credentials.ActivityEventAccountRestored:       {CategoryProvisioning, SeverityNotice},
	credentials.ActivityEventProvisioningAbandoned: {CategoryProvisioning, SeverityWarning},
}

// Option customizes how records are built.
type Option func(*mapper)

type mapper struct {
	channel       string
	actorFallback string
	now           func() time.Time
	severities    map[credentials.ActivityEventType]Severity
}

// WithChannel sets the channel stamped on every record.
func WithChannel(channel string) Option {
	return func(m *mapper) {
		if channel = strings.TrimSpace(channel); channel != "" {
			m.channel = channel
		}
	}
}

// WithActorFallback sets the actor id used when neither the actor nor the
// account is known.
func WithActorFallback(actorID string) Option {
	return func(m *mapper) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			m.actorFallback = actorID
		}
	}
}

// WithClock sets the time used for events that carry none.
func WithClock(now func() time.Time) Option {
	return func(m *mapper) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSeverity overrides the severity of one event type.
func WithSeverity(eventType credentials.ActivityEventType, severity Severity) Option {
	return func(m *mapper) {
		if m.severities == nil {
			m.severities = map[credentials.ActivityEventType]Severity{}
		}
		m.severities[eventType] = severity
	}
}

func newMapper(opts []Option) *mapper {
	m := &mapper{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Map converts event into its audit record.
func Map(event credentials.ActivityEvent, opts ...Option) Record {
	return newMapper(opts).mapEvent(event)
}

func (m *mapper) mapEvent(event credentials.ActivityEvent) Record {
	class, ok := classifications[event.EventType]
	if !ok {
		class = classification{CategoryOther, SeverityInfo}
	}
	if s, ok := m.severities[event.EventType]; ok {
		class.severity = s
	}

	accountID := strings.TrimSpace(event.AccountID)
	actorID := strings.TrimSpace(event.Actor.ID)
	if actorID == "" {
		actorID = accountID
	}
	if actorID == "" {
		actorID = m.actorFallback
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = m.now()
	}

	return Record{
		Category:   class.category,
		Action:     action(event.EventType),
		Severity:   class.severity,
		ActorID:    actorID,
		ActorType:  strings.TrimSpace(event.Actor.Type),
		AccountID:  accountID,
		Channel:    m.channel,
		Metadata:   copyMetadata(event.Metadata),
		OccurredAt: occurredAt.UTC(),
	}
}

// action is the last segment of the dotted event type.
func action(eventType credentials.ActivityEventType) string {
	s := string(eventType)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

func copyMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
