package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Feed       FeedConfig       `yaml:"feed"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Session    SessionConfig    `yaml:"session"`
	Notify     NotifyConfig     `yaml:"notify"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Storage    StorageConfig    `yaml:"storage"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Chart      ChartConfig      `yaml:"chart"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type FeedConfig struct {
	URL                 string        `yaml:"url"`
	Timeout             time.Duration `yaml:"timeout"`
	RawPath             string        `yaml:"raw_path"`
	ParsedPath          string        `yaml:"parsed_path"`
	SiteMarkers         []string      `yaml:"site_markers"`
	InterstitialMarkers []string      `yaml:"interstitial_markers"`
	LinkBaseURL         string        `yaml:"link_base_url"`
	Proxy               ProxyConfig   `yaml:"proxy"`
	Retry               RetryConfig   `yaml:"retry"`
}

type ProxyConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Effective returns the proxy URL to use, or "" when disabled.
func (p ProxyConfig) Effective() string {
	if !p.Enabled {
		return ""
	}
	return p.URL
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type MonitorConfig struct {
	Interval         time.Duration `yaml:"interval"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
	AlwaysNotify     bool          `yaml:"always_notify"`
	DedupAcrossLists *bool         `yaml:"dedup_across_lists"`
	Timezone         string        `yaml:"timezone"`
}

// Dedup reports whether a record present in both lists is kept only once.
func (m MonitorConfig) Dedup() bool {
	return m.DedupAcrossLists == nil || *m.DedupAcrossLists
}

// Location resolves Timezone, falling back to the local zone.
func (m MonitorConfig) Location() (*time.Location, error) {
	if m.Timezone == "" || strings.EqualFold(m.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(m.Timezone)
}

type SessionConfig struct {
	Store          string        `yaml:"store"` // file | keyring
	Path           string        `yaml:"path"`
	KeyringService string        `yaml:"keyring_service"`
	Refresher      string        `yaml:"refresher"` // http | command | manual
	LandingURL     string        `yaml:"landing_url"`
	Command        []string      `yaml:"command"`
	WaitTimeout    time.Duration `yaml:"wait_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

type NotifyConfig struct {
	Backend      string        `yaml:"backend"` // webhook | lark
	WebhookURL   string        `yaml:"webhook_url"`
	WebhookKey   string        `yaml:"webhook_key"`
	Timeout      time.Duration `yaml:"timeout"`
	ErrorWindow  time.Duration `yaml:"error_window"`
	ErrorLimit   int           `yaml:"error_limit"`
	MaxPerMinute int           `yaml:"max_per_minute"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Lark         LarkConfig    `yaml:"lark"`
}

type LarkConfig struct {
	AppID     string `yaml:"app_id"`
	AppSecret string `yaml:"app_secret"`
	ChatID    string `yaml:"chat_id"`
}

type ClassifierConfig struct {
	Rules []RuleConfig `yaml:"rules"`
}

type RuleConfig struct {
	Keyword string `yaml:"keyword"`
	Icon    string `yaml:"icon"`
	Label   string `yaml:"label"`
}

type StorageConfig struct {
	Driver     string `yaml:"driver"` // "", postgres, sqlite
	DSN        string `yaml:"dsn"`
	SQLitePath string `yaml:"sqlite_path"`
	SourceID   string `yaml:"source_id"`
}

type RabbitMQConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type ChartConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ImageURL   string        `yaml:"image_url"`
	Interval   time.Duration `yaml:"interval"`
	Timeout    time.Duration `yaml:"timeout"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Feed.URL == "" {
		c.Feed.URL = "https://www.binance.com/en/support/announcement/list/48"
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = 30 * time.Second
	}
	if c.Feed.RawPath == "" {
		c.Feed.RawPath = "data/listing_raw.html"
	}
	if c.Feed.ParsedPath == "" {
		c.Feed.ParsedPath = "data/listing_parsed.json"
	}
	if len(c.Feed.SiteMarkers) == 0 {
		c.Feed.SiteMarkers = []string{"__APP_DATA"}
	}
	if c.Feed.LinkBaseURL == "" {
		c.Feed.LinkBaseURL = "https://www.binance.com/en/support/announcement/"
	}
	if c.Feed.Retry.MaxAttempts == 0 {
		c.Feed.Retry.MaxAttempts = 3
	}
	if c.Feed.Retry.InitialBackoff == 0 {
		c.Feed.Retry.InitialBackoff = time.Second
	}
	if c.Feed.Retry.MaxBackoff == 0 {
		c.Feed.Retry.MaxBackoff = 30 * time.Second
	}

	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = 60 * time.Second
	}
	if c.Monitor.RunTimeout == 0 {
		c.Monitor.RunTimeout = 5 * time.Minute
	}

	if c.Session.Store == "" {
		c.Session.Store = "file"
	}
	if c.Session.Path == "" {
		c.Session.Path = "data/session_token.txt"
	}
	if c.Session.KeyringService == "" {
		c.Session.KeyringService = "listing-watcher"
	}
	if c.Session.Refresher == "" {
		c.Session.Refresher = "http"
	}
	if c.Session.LandingURL == "" {
		c.Session.LandingURL = "https://www.binance.com/en/support/announcement"
	}
	if c.Session.WaitTimeout == 0 {
		c.Session.WaitTimeout = 2 * time.Minute
	}
	if c.Session.PollInterval == 0 {
		c.Session.PollInterval = 2 * time.Second
	}

	if c.Notify.Backend == "" {
		c.Notify.Backend = "webhook"
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}
	if c.Notify.ErrorWindow == 0 {
		c.Notify.ErrorWindow = time.Hour
	}
	if c.Notify.ErrorLimit == 0 {
		c.Notify.ErrorLimit = 5
	}
	if c.Notify.MaxPerMinute == 0 {
		c.Notify.MaxPerMinute = 20
	}
	if c.Notify.MaxAttempts == 0 {
		c.Notify.MaxAttempts = 1
	}

	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/watcher.db"
	}
	if c.Storage.SourceID == "" {
		c.Storage.SourceID = "binance-listing"
	}

	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "announcements"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "announcement.new"
	}

	if c.Chart.Interval == 0 {
		c.Chart.Interval = 4 * time.Hour
	}
	if c.Chart.Timeout == 0 {
		c.Chart.Timeout = 30 * time.Second
	}
	if c.Chart.RunTimeout == 0 {
		c.Chart.RunTimeout = 2 * time.Minute
	}
}

// Validate checks the settings that have no usable default. Only the
// monitor command needs a complete configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Notify.Backend {
	case "webhook":
		if c.Notify.WebhookURL == "" && c.Notify.WebhookKey == "" {
			errs = append(errs, errors.New("notify.webhook_url or notify.webhook_key is required"))
		}
	case "lark":
		if c.Notify.Lark.AppID == "" || c.Notify.Lark.AppSecret == "" || c.Notify.Lark.ChatID == "" {
			errs = append(errs, errors.New("notify.lark app_id, app_secret and chat_id are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notify.backend %q", c.Notify.Backend))
	}

	switch c.Session.Store {
	case "file", "keyring":
	default:
		errs = append(errs, fmt.Errorf("unknown session.store %q", c.Session.Store))
	}

	switch c.Session.Refresher {
	case "http", "manual":
	case "command":
		if len(c.Session.Command) == 0 {
			errs = append(errs, errors.New("session.command is required for the command refresher"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.refresher %q", c.Session.Refresher))
	}

	switch c.Storage.Driver {
	case "", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	if c.Feed.Proxy.Enabled && c.Feed.Proxy.URL == "" {
		errs = append(errs, errors.New("feed.proxy.url is required when the proxy is enabled"))
	}
	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		errs = append(errs, errors.New("rabbitmq.url is required when rabbitmq is enabled"))
	}
	if c.Chart.Enabled && c.Chart.ImageURL == "" {
		errs = append(errs, errors.New("chart.image_url is required when the chart job is enabled"))
	}
	if _, err := c.Monitor.Location(); err != nil {
		errs = append(errs, fmt.Errorf("monitor.timezone: %w", err))
	}

	return errors.Join(errs...)
}
