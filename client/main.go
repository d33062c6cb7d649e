package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mahaj/feedsync/client/ui"
	"github.com/mahaj/feedsync/internal/feed"
	"github.com/mahaj/feedsync/pkg/config"
	"github.com/mahaj/feedsync/pkg/logging"
	"github.com/mahaj/feedsync/pkg/transport"
)

var (
	serverURL string
	userName  string
	hidden    bool
	envFile   string
	logFile   string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "feedsync",
	Short: "Terminal client for a live chat feed",
	Long: `feedsync joins a chat feed and keeps it in sync with the server.

Messages you send show up immediately and are confirmed in place when the
server echoes them. Press ctrl+n to minimize; messages that arrive while
minimized are counted as unread.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfg, err := config.Client()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("server") {
			cfg.ServerURL = serverURL
		}
		if flags.Changed("user") {
			cfg.User = userName
		}
		if flags.Changed("hidden") {
			cfg.StartHidden = hidden
		}
		if flags.Changed("log-file") {
			cfg.LogFile = logFile
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", config.DefaultServerURL, "gateway websocket URL")
	rootCmd.Flags().StringVarP(&userName, "user", "u", config.DefaultUser, "display name")
	rootCmd.Flags().BoolVar(&hidden, "hidden", false, "start minimized")
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.Flags().StringVar(&logFile, "log-file", config.DefaultClientLogFile, "log file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// feedURL adds the display name to the gateway URL.
func feedURL(raw, user string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid server url %q: scheme must be ws or wss", raw)
	}
	q := u.Query()
	q.Set("user", user)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func run(ctx context.Context, cfg *config.ClientConfig) error {
	// The UI owns the terminal, so logs always go to a file.
	if cfg.LogFile == "" {
		cfg.LogFile = config.DefaultClientLogFile
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	target, err := feedURL(cfg.ServerURL, cfg.User)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	board := ui.NewBoard(cfg.StartHidden)
	tr := transport.New(target, transport.WithLogger(logger.Named("transport")))
	f := feed.New(feed.Options{
		Renderer:       board,
		Transport:      tr,
		Visibility:     board,
		Unread:         board,
		Logger:         logger.Named("feed"),
		User:           cfg.User,
		HistoryTimeout: cfg.HistoryTimeout,
	})

	trDone := make(chan error, 1)
	go func() { trDone <- tr.Run(ctx, f) }()

	p := tea.NewProgram(ui.New(f, board, cfg.User), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	stop()
	if trErr := <-trDone; trErr != nil && !errors.Is(trErr, context.Canceled) {
		logger.Warn("transport stopped", zap.Error(trErr))
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
