package gateway

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/feedsync/pkg/model"
)

func TestHistoryRingKeepsLastN(t *testing.T) {
	r := newHistoryRing(3)
	assert.Empty(t, r.snapshot())

	for i := 1; i <= 5; i++ {
		r.add(model.Message{ID: fmt.Sprint(i)})
	}

	got := r.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "4", got[1].ID)
	assert.Equal(t, "5", got[2].ID)
}

func TestMemoryPresenceCountsConnections(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence()

	require.NoError(t, p.Join(ctx, "alice"))
	require.NoError(t, p.Join(ctx, "alice"))
	require.NoError(t, p.Join(ctx, "bob"))
	require.NoError(t, p.Leave(ctx, "alice"))

	users, err := p.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)

	require.NoError(t, p.Leave(ctx, "alice"))
	require.NoError(t, p.Leave(ctx, "carol"))
	users, err = p.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
}

func TestLocalBrokerDeliversInOrder(t *testing.T) {
	b := NewLocalBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, f := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(ctx, []byte(f)))
	}

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- b.Consume(ctx, func(frame []byte) {
			got = append(got, string(frame))
			if len(got) == 3 {
				cancel()
			}
		})
	}()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.NoError(t, b.Close())
}
