package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"listing_watcher/internal/chart"
	"listing_watcher/internal/classify"
	"listing_watcher/internal/config"
	"listing_watcher/internal/metrics"
	"listing_watcher/internal/notify"
	"listing_watcher/internal/publisher"
	"listing_watcher/internal/retry"
	"listing_watcher/internal/scheduler"
	"listing_watcher/internal/service"
	"listing_watcher/internal/session"
	"listing_watcher/internal/source/binance"
	"listing_watcher/internal/storage/sqlstore"
)

const usage = `usage: watcher [-config path] [command]

commands:
  monitor               poll the announcement feed (default)
  refresh-session       obtain a new session token and store it
  set-session <token>   store the given session token
`

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := flag.Arg(0)
	switch command {
	case "", "monitor":
		err = runMonitor(ctx, cfg, logger)
	case "refresh-session":
		err = refreshSession(ctx, cfg, logger)
	case "set-session":
		err = setSession(cfg, flag.Arg(1), logger)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func runMonitor(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	loc, err := cfg.Monitor.Location()
	if err != nil {
		return err
	}

	m := metrics.New()

	provider, err := newSessionProvider(cfg, logger)
	if err != nil {
		return err
	}
	provider.WithMetrics(m)

	fetcher, err := binance.NewFetcher(binance.FetcherConfig{
		URL:                 cfg.Feed.URL,
		Timeout:             cfg.Feed.Timeout,
		ProxyURL:            cfg.Feed.Proxy.Effective(),
		RawPath:             cfg.Feed.RawPath,
		SiteMarkers:         cfg.Feed.SiteMarkers,
		InterstitialMarkers: cfg.Feed.InterstitialMarkers,
		Retry: retry.Policy{
			MaxAttempts:    cfg.Feed.Retry.MaxAttempts,
			InitialBackoff: cfg.Feed.Retry.InitialBackoff,
			MaxBackoff:     cfg.Feed.Retry.MaxBackoff,
		},
	}, provider, m, logger)
	if err != nil {
		return err
	}
	extractor := binance.NewExtractor(cfg.Feed.ParsedPath, logger)

	rules := make([]classify.Rule, 0, len(cfg.Classifier.Rules))
	for _, r := range cfg.Classifier.Rules {
		rules = append(rules, classify.Rule{Keyword: r.Keyword, Icon: r.Icon, Label: r.Label})
	}
	formatter := notify.NewFormatter(classify.New(rules), cfg.Feed.LinkBaseURL, loc)

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}
	notifier := notify.New(sender,
		notify.NewErrorWindow(cfg.Notify.ErrorWindow, cfg.Notify.ErrorLimit),
		notify.Options{
			MaxPerMinute: cfg.Notify.MaxPerMinute,
			Retry:        retry.Policy{MaxAttempts: cfg.Notify.MaxAttempts, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second},
		},
		m, logger)

	store := service.Persistence{SourceID: cfg.Storage.SourceID}
	if cfg.Storage.Driver != "" {
		db, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver:     cfg.Storage.Driver,
			DSN:        cfg.Storage.DSN,
			SQLitePath: cfg.Storage.SQLitePath,
		})
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer closeDB(db, logger)

		store.Seen = sqlstore.NewSeenStore(db)
		store.State = sqlstore.NewCycleStateStore(db)
		store.TxManager = sqlstore.NewTransactionManager(db)
		logger.Info("storage ready", "driver", cfg.Storage.Driver)
	}

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
			SourceID:   cfg.Storage.SourceID,
		}, formatter, logger)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	watch := service.NewWatchService(fetcher, extractor, formatter, notifier, pub, store, cfg.Monitor, m, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.NewScheduler(watch, cfg.Monitor.Interval, cfg.Monitor.RunTimeout, logger).Start(ctx)
	})

	if cfg.Chart.Enabled {
		capturer, err := chart.NewHTTPCapturer(cfg.Chart.ImageURL, cfg.Chart.Timeout, cfg.Feed.Proxy.Effective())
		if err != nil {
			return err
		}
		job := chart.NewJob(capturer, notifier, m, logger)
		g.Go(func() error {
			return scheduler.NewScheduler(job, cfg.Chart.Interval, cfg.Chart.RunTimeout, logger).Start(ctx)
		})
	}

	if cfg.Metrics.ListenAddr != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.Metrics.ListenAddr, m, logger)
		})
	}

	logger.Info("starting listing watcher",
		"feed", cfg.Feed.URL,
		"interval", cfg.Monitor.Interval,
		"notify", sender.Name(),
		"storage", cfg.Storage.Driver,
		"rabbitmq", cfg.RabbitMQ.Enabled,
		"chart", cfg.Chart.Enabled,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func refreshSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	provider, err := newSessionProvider(cfg, logger)
	if err != nil {
		return err
	}
	token, err := provider.Refresh(ctx)
	if err != nil {
		return err
	}
	logger.Info("session token stored", "token", session.Mask(token))
	return nil
}

func setSession(cfg *config.Config, token string, logger *slog.Logger) error {
	store, err := newTokenStore(cfg)
	if err != nil {
		return err
	}
	if !session.NewProvider(store, nil, 0, logger).Set(token) {
		return errors.New("token is empty or could not be stored")
	}
	return nil
}

func newTokenStore(cfg *config.Config) (session.TokenStore, error) {
	switch cfg.Session.Store {
	case "keyring":
		return session.NewKeyringStore(cfg.Session.KeyringService, filepath.Dir(cfg.Session.Path))
	case "file":
		return session.NewFileStore(cfg.Session.Path), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

func newSessionProvider(cfg *config.Config, logger *slog.Logger) (*session.Provider, error) {
	store, err := newTokenStore(cfg)
	if err != nil {
		return nil, err
	}

	var refresher session.Refresher
	switch cfg.Session.Refresher {
	case "http":
		refresher = session.NewHTTPRefresher(cfg.Session.LandingURL, cfg.Feed.Timeout, cfg.Feed.Proxy.Effective())
	case "command":
		refresher = session.NewCommandRefresher(cfg.Session.Command, logger)
	case "manual":
		refresher = session.NewManualRefresher(store, cfg.Session.PollInterval, logger)
	default:
		return nil, fmt.Errorf("unknown session refresher %q", cfg.Session.Refresher)
	}

	return session.NewProvider(store, refresher, cfg.Session.WaitTimeout, logger), nil
}

func newSender(cfg *config.Config) (notify.Sender, error) {
	switch cfg.Notify.Backend {
	case "lark":
		return notify.NewLarkSender(cfg.Notify.Lark.AppID, cfg.Notify.Lark.AppSecret, cfg.Notify.Lark.ChatID)
	default:
		return notify.NewWebhookSender(notify.WebhookConfig{
			URL:      cfg.Notify.WebhookURL,
			Key:      cfg.Notify.WebhookKey,
			Timeout:  cfg.Notify.Timeout,
			ProxyURL: cfg.Feed.Proxy.Effective(),
		})
	}
}

func closeDB(db *sqlx.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", "error", err)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
