package gateway

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real redis when FEED_TEST_REDIS_ADDR is set.
func TestRedisPresence(t *testing.T) {
	addr := os.Getenv("FEED_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FEED_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	feed := "test-" + uuid.NewString()
	p := NewRedisPresence(rdb, feed)
	t.Cleanup(func() { rdb.Del(ctx, "feed:"+feed+":users") })

	require.NoError(t, p.Join(ctx, "bob"))
	require.NoError(t, p.Join(ctx, "alice"))
	require.NoError(t, p.Join(ctx, "alice"))

	users, err := p.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)

	require.NoError(t, p.Leave(ctx, "alice"))
	require.NoError(t, p.Leave(ctx, "bob"))
	users, err = p.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)
}
