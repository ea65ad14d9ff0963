// Package metrics exposes account activity as Prometheus counters.
package metrics

import (
	"context"

	"github.com/goliatone/go-credentials"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink counts activity events by type and actor type.
type Sink struct {
	events *prometheus.CounterVec
}

// NewSink creates the counters and registers them with reg. A nil reg
// registers with the default registerer.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credentials_activity_events_total",
		Help: "Count of account activity events by event and actor type",
	}, []string{"event", "actor"})

	if err := reg.Register(events); err != nil {
		return nil, err
	}

	return &Sink{events: events}, nil
}

// MustNewSink is like NewSink but panics on registration errors.
func MustNewSink(reg prometheus.Registerer) *Sink {
	s, err := NewSink(reg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Sink) Record(_ context.Context, event credentials.ActivityEvent) error {
	actor := event.Actor.Type
	if actor == "" {
		actor = "unknown"
	}
	s.events.WithLabelValues(string(event.EventType), actor).Inc()
	return nil
}

var _ credentials.ActivitySink = (*Sink)(nil)
