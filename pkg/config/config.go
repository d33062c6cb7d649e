// Package config reads client and gateway settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultServerURL      = "ws://localhost:8080/ws"
	DefaultUser           = "Anonymous"
	DefaultHistoryTimeout = time.Second
	DefaultClientLogFile  = "client.log"

	DefaultGatewayAddr    = ":8080"
	DefaultHistorySize    = 100
	DefaultKafkaTopic     = "chat-messages"
	DefaultFeedName       = "global"
	DefaultSendRate       = 5.0
	DefaultSendBurst      = 10
	DefaultGatewayLogFile = "gateway.log"
)

// ClientConfig configures the terminal client.
type ClientConfig struct {
	ServerURL      string
	User           string
	HistoryTimeout time.Duration
	StartHidden    bool
	LogFile        string
	LogLevel       string
}

// GatewayConfig configures the reference feed gateway. KafkaBrokers and
// RedisAddr are optional: without brokers the hub fans out in-process, without
// redis presence is tracked in memory.
type GatewayConfig struct {
	Addr         string
	FeedName     string
	HistorySize  int
	KafkaBrokers []string
	KafkaTopic   string
	RedisAddr    string
	SendRate     float64
	SendBurst    int
	LogFile      string
	LogLevel     string
}

// LoadDotEnv loads variables from the given files (".env" when none are
// given) without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Client reads ClientConfig from the environment.
func Client() (*ClientConfig, error) {
	timeout, err := getDuration("FEED_HISTORY_TIMEOUT", DefaultHistoryTimeout)
	if err != nil {
		return nil, err
	}
	hidden, err := getBool("FEED_START_HIDDEN", false)
	if err != nil {
		return nil, err
	}
	return &ClientConfig{
		ServerURL:      getString("FEED_SERVER_URL", DefaultServerURL),
		User:           getString("FEED_USER", DefaultUser),
		HistoryTimeout: timeout,
		StartHidden:    hidden,
		LogFile:        getString("FEED_LOG_FILE", DefaultClientLogFile),
		LogLevel:       getString("FEED_LOG_LEVEL", "info"),
	}, nil
}

// Gateway reads GatewayConfig from the environment.
func Gateway() (*GatewayConfig, error) {
	size, err := getInt("GATEWAY_HISTORY_SIZE", DefaultHistorySize)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("GATEWAY_HISTORY_SIZE must be positive, got %d", size)
	}
	rate, err := getFloat("GATEWAY_SEND_RATE", DefaultSendRate)
	if err != nil {
		return nil, err
	}
	burst, err := getInt("GATEWAY_SEND_BURST", DefaultSendBurst)
	if err != nil {
		return nil, err
	}
	return &GatewayConfig{
		Addr:         getString("GATEWAY_ADDR", DefaultGatewayAddr),
		FeedName:     getString("FEED_NAME", DefaultFeedName),
		HistorySize:  size,
		KafkaBrokers: getList("KAFKA_BROKERS"),
		KafkaTopic:   getString("KAFKA_TOPIC", DefaultKafkaTopic),
		RedisAddr:    getString("REDIS_ADDR", ""),
		SendRate:     rate,
		SendBurst:    burst,
		LogFile:      getString("GATEWAY_LOG_FILE", DefaultGatewayLogFile),
		LogLevel:     getString("GATEWAY_LOG_LEVEL", "info"),
	}, nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

// getDuration accepts Go durations ("1500ms") or bare milliseconds ("1500").
func getDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
