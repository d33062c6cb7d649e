package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestClientDefaults(t *testing.T) {
	clearEnv(t, "FEED_SERVER_URL", "FEED_USER", "FEED_HISTORY_TIMEOUT", "FEED_START_HIDDEN", "FEED_LOG_FILE", "FEED_LOG_LEVEL")

	cfg, err := Client()
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL, cfg.ServerURL)
	assert.Equal(t, DefaultUser, cfg.User)
	assert.Equal(t, time.Second, cfg.HistoryTimeout)
	assert.False(t, cfg.StartHidden)
	assert.Equal(t, DefaultClientLogFile, cfg.LogFile)
}

func TestClientOverrides(t *testing.T) {
	t.Run("milliseconds timeout", func(t *testing.T) {
		t.Setenv("FEED_HISTORY_TIMEOUT", "1500")
		cfg, err := Client()
		require.NoError(t, err)
		assert.Equal(t, 1500*time.Millisecond, cfg.HistoryTimeout)
	})

	t.Run("duration timeout", func(t *testing.T) {
		t.Setenv("FEED_HISTORY_TIMEOUT", "2s")
		cfg, err := Client()
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, cfg.HistoryTimeout)
	})

	t.Run("user and hidden", func(t *testing.T) {
		t.Setenv("FEED_USER", "alice")
		t.Setenv("FEED_START_HIDDEN", "true")
		cfg, err := Client()
		require.NoError(t, err)
		assert.Equal(t, "alice", cfg.User)
		assert.True(t, cfg.StartHidden)
	})

	t.Run("bad bool", func(t *testing.T) {
		t.Setenv("FEED_START_HIDDEN", "sometimes")
		_, err := Client()
		assert.Error(t, err)
	})
}

func TestGatewayDefaults(t *testing.T) {
	clearEnv(t, "GATEWAY_ADDR", "GATEWAY_HISTORY_SIZE", "KAFKA_BROKERS", "KAFKA_TOPIC", "REDIS_ADDR", "GATEWAY_SEND_RATE", "GATEWAY_SEND_BURST", "FEED_NAME")

	cfg, err := Gateway()
	require.NoError(t, err)
	assert.Equal(t, DefaultGatewayAddr, cfg.Addr)
	assert.Equal(t, DefaultHistorySize, cfg.HistorySize)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Equal(t, DefaultKafkaTopic, cfg.KafkaTopic)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, DefaultFeedName, cfg.FeedName)
}

func TestGatewayOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("GATEWAY_HISTORY_SIZE", "20")

	cfg, err := Gateway()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 20, cfg.HistorySize)
}

func TestGatewayRejectsNonPositiveHistory(t *testing.T) {
	t.Setenv("GATEWAY_HISTORY_SIZE", "0")
	_, err := Gateway()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FEEDSYNC_DOTENV_PROBE=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FEEDSYNC_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("FEEDSYNC_DOTENV_PROBE"))
}
