package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/postnotify/internal/feed"
	"github.com/ppiankov/postnotify/internal/logging"
	"github.com/ppiankov/postnotify/internal/notify"
	"github.com/ppiankov/postnotify/internal/render"
	"github.com/ppiankov/postnotify/internal/store"
	"github.com/ppiankov/postnotify/internal/timeline"
)

const (
	DefaultConfigDir    = ".postnotify"
	DefaultConfigFile   = "config.yaml"
	DefaultStoragePath  = ".postnotify/state.db"
	DefaultRedisAddr    = "localhost:6379"
	DefaultRedisPrefix  = "postnotify"
	DefaultLogLevel     = "info"
	DefaultNotifyTarget = notify.ProviderPushover

	// EnvPrefix prefixes every credential variable, e.g. POSTNOTIFY_BEARER_TOKEN.
	EnvPrefix = "POSTNOTIFY"

	// MaxAccounts is how many handles one batched lookup accepts.
	MaxAccounts = 100
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Accounts []string      `yaml:"accounts"`
	Feed     FeedConfig    `yaml:"feed"`
	Notify   NotifyConfig  `yaml:"notify"`
	Storage  StorageConfig `yaml:"storage"`
	Log      LogConfig     `yaml:"log"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Privacy  PrivacyConfig `yaml:"privacy"`

	// Resolved from the environment at load time.
	Credentials Credentials `yaml:"-"`
}

type FeedConfig struct {
	BaseURL       string   `yaml:"base_url"`
	WebURL        string   `yaml:"web_url"`
	PageSize      int      `yaml:"page_size"`
	MaxPages      int      `yaml:"max_pages"`
	FirstRunPosts int      `yaml:"first_run_posts"`
	Timeout       Duration `yaml:"timeout"`
}

type NotifyConfig struct {
	Provider string         `yaml:"provider"`
	Device   string         `yaml:"device"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	ChatID int64 `yaml:"chat_id"`
}

type StorageConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr   string `yaml:"addr"`
	DB     int    `yaml:"db"`
	Prefix string `yaml:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

// Credentials are secrets that never live in the config file.
type Credentials struct {
	BearerToken      string `envconfig:"BEARER_TOKEN"`
	PushoverAppToken string `envconfig:"PUSHOVER_APP_TOKEN"`
	PushoverUserKey  string `envconfig:"PUSHOVER_USER_KEY"`
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	RedisPassword    string `envconfig:"REDIS_PASSWORD"`
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := resolveEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Feed.BaseURL == "" {
		cfg.Feed.BaseURL = feed.DefaultBaseURL
	}
	if cfg.Feed.WebURL == "" {
		cfg.Feed.WebURL = render.DefaultWebURL
	}
	if cfg.Feed.PageSize == 0 {
		cfg.Feed.PageSize = timeline.DefaultPageSize
	}
	if cfg.Feed.MaxPages == 0 {
		cfg.Feed.MaxPages = timeline.DefaultMaxPages
	}
	if cfg.Feed.Timeout.Duration == 0 {
		cfg.Feed.Timeout.Duration = feed.DefaultTimeout
	}
	if cfg.Notify.Provider == "" {
		cfg.Notify.Provider = DefaultNotifyTarget
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = store.DriverSQLite
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = DefaultRedisPrefix
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = logging.FormatConsole
	}
}

func resolveEnv(cfg *Config) error {
	return envconfig.Process(EnvPrefix, &cfg.Credentials)
}

func validate(cfg *Config) error {
	if len(cfg.Accounts) == 0 {
		return errors.New("accounts: at least one account must be configured")
	}
	if len(cfg.Accounts) > MaxAccounts {
		return fmt.Errorf("accounts: %d configured, at most %d supported", len(cfg.Accounts), MaxAccounts)
	}
	for i, a := range cfg.Accounts {
		if timeline.NormalizeHandle(a) == "" {
			return fmt.Errorf("accounts[%d]: empty handle", i)
		}
	}

	if cfg.Feed.PageSize < timeline.MinPageSize || cfg.Feed.PageSize > timeline.MaxPageSize {
		return fmt.Errorf("feed.page_size: %d out of range [%d, %d]", cfg.Feed.PageSize, timeline.MinPageSize, timeline.MaxPageSize)
	}
	if cfg.Feed.MaxPages < 1 {
		return fmt.Errorf("feed.max_pages: must be at least 1, got %d", cfg.Feed.MaxPages)
	}
	if cfg.Feed.FirstRunPosts < 0 {
		return fmt.Errorf("feed.first_run_posts: must not be negative, got %d", cfg.Feed.FirstRunPosts)
	}

	switch cfg.Notify.Provider {
	case notify.ProviderPushover, notify.ProviderTelegram, notify.ProviderStdout:
		// valid
	default:
		return fmt.Errorf("notify.provider: unknown provider %q (want pushover, telegram or stdout)", cfg.Notify.Provider)
	}

	switch cfg.Storage.Driver {
	case store.DriverSQLite, store.DriverRedis:
		// valid
	default:
		return fmt.Errorf("storage.driver: unknown driver %q (want sqlite or redis)", cfg.Storage.Driver)
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case logging.FormatConsole, logging.FormatJSON:
		// valid
	default:
		return fmt.Errorf("log.format: unknown format %q (want console or json)", cfg.Log.Format)
	}

	if cfg.Privacy.Redact.Enabled {
		if _, err := render.Compile(cfg.Privacy.Redact.Patterns); err != nil {
			return fmt.Errorf("privacy.redact: %w", err)
		}
	}

	return nil
}

// MissingCredentials lists unset environment variables that the feed client
// and the configured notifier need.
func (c *Config) MissingCredentials() []string {
	var missing []string
	need := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, EnvPrefix+"_"+name)
		}
	}

	need(c.Credentials.BearerToken, "BEARER_TOKEN")
	switch c.Notify.Provider {
	case notify.ProviderPushover:
		need(c.Credentials.PushoverAppToken, "PUSHOVER_APP_TOKEN")
		need(c.Credentials.PushoverUserKey, "PUSHOVER_USER_KEY")
	case notify.ProviderTelegram:
		need(c.Credentials.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	}
	return missing
}

// StoreOptions maps storage settings onto store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:        c.Storage.Driver,
		Path:          c.Storage.Path,
		RedisAddr:     c.Storage.Redis.Addr,
		RedisPassword: c.Credentials.RedisPassword,
		RedisDB:       c.Storage.Redis.DB,
		RedisPrefix:   c.Storage.Redis.Prefix,
	}
}

// FetchOptions maps feed settings onto the fetcher.
func (c *Config) FetchOptions() timeline.Options {
	return timeline.Options{
		PageSize:      c.Feed.PageSize,
		MaxPages:      c.Feed.MaxPages,
		FirstRunPosts: c.Feed.FirstRunPosts,
	}
}
