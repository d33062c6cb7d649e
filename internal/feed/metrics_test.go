package feed

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/feedsync/pkg/metrics"
	"github.com/mahaj/feedsync/pkg/model"
)

type counterSnapshot struct {
	inserted, confirmed, discarded float64
	history, requests, sessions    float64
}

func readCounters() counterSnapshot {
	return counterSnapshot{
		inserted:  testutil.ToFloat64(metrics.MessagesApplied.WithLabelValues(Inserted.String())),
		confirmed: testutil.ToFloat64(metrics.MessagesApplied.WithLabelValues(Confirmed.String())),
		discarded: testutil.ToFloat64(metrics.MessagesApplied.WithLabelValues(Discarded.String())),
		history:   testutil.ToFloat64(metrics.HistoryApplied),
		requests:  testutil.ToFloat64(metrics.HistoryRequests),
		sessions:  testutil.ToFloat64(metrics.Sessions),
	}
}

func TestReconciliationMetrics(t *testing.T) {
	h := newHarness(t)
	before := readCounters()

	h.feed.Connected()
	h.clock.fire(0)
	h.feed.History(history("a", "b"))

	h.feed.Apply(model.Message{ID: "c", Text: "live"})
	h.feed.Apply(model.Message{ID: "a", Text: "dup"})
	id, err := h.feed.Submit("mine")
	require.NoError(t, err)
	h.feed.Apply(model.Message{ID: id, Text: "mine"})

	after := readCounters()
	assert.Equal(t, 2.0, after.inserted-before.inserted, "live c and the local send")
	assert.Equal(t, 1.0, after.confirmed-before.confirmed)
	assert.Equal(t, 1.0, after.discarded-before.discarded)
	assert.Equal(t, 1.0, after.history-before.history)
	assert.Equal(t, 1.0, after.requests-before.requests)
	assert.Equal(t, 1.0, after.sessions-before.sessions)
}
