package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppiankov/postnotify/internal/config"
	"github.com/ppiankov/postnotify/internal/feed"
	"github.com/ppiankov/postnotify/internal/logging"
	"github.com/ppiankov/postnotify/internal/metrics"
	"github.com/ppiankov/postnotify/internal/notify"
	"github.com/ppiankov/postnotify/internal/render"
	"github.com/ppiankov/postnotify/internal/store"
	"github.com/ppiankov/postnotify/internal/timeline"
)

// app is what a fetching command needs for one run. The store is owned by
// the app and released by Close.
type app struct {
	cfg *config.Config
	log zerolog.Logger
	kv  store.KV
	agg *timeline.Aggregator
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		if _, err := logging.ParseLevel(logLevel); err != nil {
			return nil, err
		}
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	return logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}

func openApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	if cfg.Credentials.BearerToken == "" {
		return nil, fmt.Errorf("%s_BEARER_TOKEN is not set", config.EnvPrefix)
	}

	log = log.With().Str("run_id", uuid.NewString()).Logger()

	client, err := feed.New(cfg.Credentials.BearerToken,
		feed.WithBaseURL(cfg.Feed.BaseURL),
		feed.WithTimeout(cfg.Feed.Timeout.Duration),
	)
	if err != nil {
		return nil, fmt.Errorf("create feed client: %w", err)
	}

	kv, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	resolver := timeline.NewResolver(kv, client, log)
	fetcher := timeline.NewFetcher(kv, client, cfg.FetchOptions(), log)

	return &app{
		cfg: cfg,
		log: log,
		kv:  kv,
		agg: timeline.NewAggregator(resolver, fetcher, log),
	}, nil
}

func (a *app) Close() error {
	return a.kv.Close()
}

// fetch collects every account's new posts and renders them. Watermarks are
// committed before this returns.
func (a *app) fetch(ctx context.Context) ([]render.Message, []timeline.AccountSummary, error) {
	posts, summaries, err := a.agg.FetchAll(ctx, a.cfg.Accounts)
	if err != nil {
		logSkipped(a.log, summaries)
		return nil, nil, err
	}

	msgs := render.Messages(posts, a.cfg.Feed.WebURL)
	if a.cfg.Privacy.Redact.Enabled {
		redactor, err := render.NewRedactor(a.cfg.Privacy.Redact.Patterns)
		if err != nil {
			return nil, nil, fmt.Errorf("compile redact patterns: %w", err)
		}
		msgs = redactor.Apply(msgs)
	}
	return msgs, summaries, nil
}

// logSkipped names the accounts whose watermarks moved in an aborted run.
// Their posts are not delivered.
func logSkipped(log zerolog.Logger, summaries []timeline.AccountSummary) {
	for _, s := range summaries {
		if len(s.Result.Posts) == 0 {
			continue
		}
		log.Warn().
			Str("handle", s.Handle).
			Int("posts", len(s.Result.Posts)).
			Str("watermark", s.Result.Watermark).
			Msg("run aborted, committed posts not delivered")
	}
}

// finish records run metrics and writes the textfile when configured.
func (a *app) finish(start time.Time, ok bool) {
	metrics.ObserveRun(start, ok)

	path := a.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	if err := metrics.WriteTextfile(path, reg); err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("write metrics textfile")
	}
}

// newNotifier builds the configured notifier. Tests replace it.
var newNotifier = func(cfg *config.Config, log zerolog.Logger) (notify.Notifier, error) {
	switch cfg.Notify.Provider {
	case notify.ProviderPushover:
		return notify.NewPushover(cfg.Credentials.PushoverAppToken, cfg.Credentials.PushoverUserKey, log)
	case notify.ProviderTelegram:
		return notify.NewTelegram(cfg.Credentials.TelegramBotToken, cfg.Notify.Telegram.ChatID, log)
	case notify.ProviderStdout:
		return notify.NewStdout(os.Stdout, false), nil
	default:
		return nil, fmt.Errorf("unknown notify provider %q", cfg.Notify.Provider)
	}
}
