package metrics_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	failure := credentials.ActivityEvent{
		EventType: credentials.ActivityEventLoginFailure,
		Actor:     credentials.ActorRef{ID: "a", Type: "user"},
	}
	require.NoError(t, sink.Record(ctx, failure))
	require.NoError(t, sink.Record(ctx, failure))
	require.NoError(t, sink.Record(ctx, credentials.ActivityEvent{EventType: credentials.ActivityEventAccountLockedOut}))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "credentials_activity_events_total", families[0].GetName())
	assert.Len(t, families[0].GetMetric(), 2)


	count, err := testutil.GatherAndCount(reg, "credentials_activity_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	values := map[string]float64{}
	for _, m := range families[0].GetMetric() {
		labels := map[string]string{}
		for _, l := range m.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		values[labels["event"]+"/"+labels["actor"]] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, values[string(credentials.ActivityEventLoginFailure)+"/user"])
	assert.Equal(t, 1.0, values[string(credentials.ActivityEventAccountLockedOut)+"/unknown"])
}

func TestSinkRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewSink(reg)
	require.NoError(t, err)

	_, err = metrics.NewSink(reg)
	assert.Error(t, err)
	assert.Panics(t, func() { metrics.MustNewSink(reg) })
}
