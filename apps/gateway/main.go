package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mahaj/feedsync/internal/gateway"
	"github.com/mahaj/feedsync/pkg/config"
	"github.com/mahaj/feedsync/pkg/logging"
)

var (
	addr      string
	envFile   string
	logLevel  string
	logFile   string
	kafkaList []string
	redisAddr string
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Reference websocket gateway for a single chat feed",
	Long: `gateway serves one chat feed over websockets at /ws.

Every client receives the retained history on connect and every chat message
is echoed to all clients with its client-supplied id, so senders can confirm
their optimistic messages. Set KAFKA_BROKERS to fan out across several gateway
instances and REDIS_ADDR to share presence between them.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfg, err := config.Gateway()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Addr = addr
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if flags.Changed("log-file") {
			cfg.LogFile = logFile
		}
		if flags.Changed("kafka") {
			cfg.KafkaBrokers = kafkaList
		}
		if flags.Changed("redis") {
			cfg.RedisAddr = redisAddr
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", config.DefaultGatewayAddr, "listen address")
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&logFile, "log-file", config.DefaultGatewayLogFile, "log file; empty logs to stderr")
	rootCmd.Flags().StringSliceVar(&kafkaList, "kafka", nil, "kafka brokers (or set KAFKA_BROKERS)")
	rootCmd.Flags().StringVar(&redisAddr, "redis", "", "redis address for presence (or set REDIS_ADDR)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.GatewayConfig) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := gateway.NewLocalBroker()
	if len(cfg.KafkaBrokers) > 0 {
		instance := uuid.NewString()
		broker = gateway.NewKafkaBroker(cfg.KafkaBrokers, cfg.KafkaTopic, instance)
		logger.Info("using kafka broker",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
			zap.String("instance", instance))
	}
	defer broker.Close()

	presence := gateway.NewMemoryPresence()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		presence = gateway.NewRedisPresence(rdb, cfg.FeedName)
		logger.Info("using redis presence", zap.String("addr", cfg.RedisAddr))
	}

	hub := gateway.NewHub(gateway.Options{
		Broker:      broker,
		Presence:    presence,
		HistorySize: cfg.HistorySize,
		SendRate:    cfg.SendRate,
		SendBurst:   cfg.SendBurst,
		Logger:      logger,
	})
	hubDone := make(chan error, 1)
	go func() { hubDone <- hub.Run(ctx) }()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gateway.NewMux(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()
	logger.Info("gateway starting", zap.String("addr", cfg.Addr), zap.String("feed", cfg.FeedName))

	var hubErr error
	select {
	case err := <-serveErr:
		stop()
		<-hubDone
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	case err := <-hubDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("hub stopped", zap.Error(err))
			hubErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("gateway stopped")
	return hubErr
}
