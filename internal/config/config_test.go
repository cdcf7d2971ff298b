package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/postnotify/internal/feed"
	"github.com/ppiankov/postnotify/internal/store"
)

func writeTestYAML(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test yaml: %v", err)
	}
	return path
}

func clearCredentials(t *testing.T) {
	t.Helper()
	for _, name := range []string{"BEARER_TOKEN", "PUSHOVER_APP_TOKEN", "PUSHOVER_USER_KEY", "TELEGRAM_BOT_TOKEN", "REDIS_PASSWORD"} {
		t.Setenv(EnvPrefix+"_"+name, "")
	}
}

func loadErr(t *testing.T, yaml string) error {
	t.Helper()
	clearCredentials(t)
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, yaml)
	_, err := Load(dir)
	return err
}

// --- Load tests ---

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	clearCredentials(t)
	t.Setenv("POSTNOTIFY_BEARER_TOKEN", "bearer-secret")
	t.Setenv("POSTNOTIFY_TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("POSTNOTIFY_REDIS_PASSWORD", "hunter2")

	writeTestYAML(t, dir, DefaultConfigFile, `
accounts: [alice, "@Bob"]
feed:
  base_url: https://api.example.test/2
  web_url: https://example.test
  page_size: 50
  max_pages: 3
  first_run_posts: 2
  timeout: 10s
notify:
  provider: telegram
  device: "-100200"
  telegram:
    chat_id: 1001
storage:
  driver: redis
  redis:
    addr: redis:6379
    db: 2
    prefix: pn
log:
  level: debug
  format: json
metrics:
  textfile: /var/lib/node_exporter/postnotify.prom
privacy:
  redact:
    enabled: true
    patterns:
      - "(?i)token"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.Accounts) != 2 || cfg.Accounts[1] != "@Bob" {
		t.Errorf("accounts = %v", cfg.Accounts)
	}

	// Feed
	if cfg.Feed.BaseURL != "https://api.example.test/2" || cfg.Feed.WebURL != "https://example.test" {
		t.Errorf("feed urls = %q %q", cfg.Feed.BaseURL, cfg.Feed.WebURL)
	}
	if cfg.Feed.PageSize != 50 || cfg.Feed.MaxPages != 3 || cfg.Feed.FirstRunPosts != 2 {
		t.Errorf("feed = %+v", cfg.Feed)
	}
	if cfg.Feed.Timeout.Duration != 10*time.Second {
		t.Errorf("timeout = %v", cfg.Feed.Timeout.Duration)
	}

	// Notify
	if cfg.Notify.Provider != "telegram" || cfg.Notify.Device != "-100200" || cfg.Notify.Telegram.ChatID != 1001 {
		t.Errorf("notify = %+v", cfg.Notify)
	}

	// Storage
	opts := cfg.StoreOptions()
	if opts.Driver != store.DriverRedis || opts.RedisAddr != "redis:6379" || opts.RedisDB != 2 || opts.RedisPrefix != "pn" {
		t.Errorf("store options = %+v", opts)
	}
	if opts.RedisPassword != "hunter2" {
		t.Errorf("redis password = %q", opts.RedisPassword)
	}

	// Log, metrics, privacy
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Metrics.Textfile == "" {
		t.Error("metrics.textfile not loaded")
	}
	if !cfg.Privacy.Redact.Enabled || len(cfg.Privacy.Redact.Patterns) != 1 {
		t.Errorf("redact = %+v", cfg.Privacy.Redact)
	}

	// Credentials
	if cfg.Credentials.BearerToken != "bearer-secret" || cfg.Credentials.TelegramBotToken != "123:abc" {
		t.Errorf("credentials = %+v", cfg.Credentials)
	}
	if missing := cfg.MissingCredentials(); len(missing) != 0 {
		t.Errorf("missing = %v", missing)
	}

	fo := cfg.FetchOptions()
	if fo.PageSize != 50 || fo.MaxPages != 3 || fo.FirstRunPosts != 2 {
		t.Errorf("fetch options = %+v", fo)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	clearCredentials(t)
	writeTestYAML(t, dir, DefaultConfigFile, `
accounts: [alice]
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Feed.BaseURL != feed.DefaultBaseURL {
		t.Errorf("base_url = %q", cfg.Feed.BaseURL)
	}
	if cfg.Feed.WebURL != "https://x.com" {
		t.Errorf("web_url = %q", cfg.Feed.WebURL)
	}
	if cfg.Feed.PageSize != 100 || cfg.Feed.MaxPages != 5 || cfg.Feed.FirstRunPosts != 0 {
		t.Errorf("feed = %+v", cfg.Feed)
	}
	if cfg.Feed.Timeout.Duration != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Feed.Timeout.Duration)
	}
	if cfg.Notify.Provider != "pushover" {
		t.Errorf("provider = %q", cfg.Notify.Provider)
	}
	if cfg.Storage.Driver != store.DriverSQLite || cfg.Storage.Path != DefaultStoragePath {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.Redis.Prefix != DefaultRedisPrefix || cfg.Storage.Redis.Addr != DefaultRedisAddr {
		t.Errorf("redis = %+v", cfg.Storage.Redis)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_Validation(t *testing.T) {
	tooMany := make([]string, MaxAccounts+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("user%d", i)
	}

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no accounts", "accounts: []", "at least one account"},
		{"too many accounts", "accounts: [" + strings.Join(tooMany, ", ") + "]", "at most 100"},
		{"empty handle", `accounts: [alice, "@"]`, "accounts[1]: empty handle"},
		{"page size low", "accounts: [a]\nfeed: {page_size: 4}", "feed.page_size"},
		{"page size high", "accounts: [a]\nfeed: {page_size: 101}", "feed.page_size"},
		{"max pages", "accounts: [a]\nfeed: {max_pages: -1}", "feed.max_pages"},
		{"first run posts", "accounts: [a]\nfeed: {first_run_posts: -3}", "feed.first_run_posts"},
		{"provider", "accounts: [a]\nnotify: {provider: sms}", "notify.provider"},
		{"driver", "accounts: [a]\nstorage: {driver: postgres}", "storage.driver"},
		{"log level", "accounts: [a]\nlog: {level: loud}", "log.level"},
		{"log format", "accounts: [a]\nlog: {format: xml}", "log.format"},
		{"redact pattern", "accounts: [a]\nprivacy: {redact: {enabled: true, patterns: [\"[bad\"]}}", "privacy.redact"},
		{"duration", "accounts: [a]\nfeed: {timeout: soon}", "parse duration"},
	}
	for _, tt := range tests {
		err := loadErr(t, tt.yaml)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %q, want containing %q", tt.name, err, tt.want)
		}
	}
}

func TestLoad_DisabledRedactSkipsPatternCheck(t *testing.T) {
	if err := loadErr(t, "accounts: [a]\nprivacy: {redact: {enabled: false, patterns: [\"[bad\"]}}"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if !strings.Contains(err.Error(), "read config") {
		t.Errorf("error = %q", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	err := loadErr(t, "accounts: [alice\n  broken: {")
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("error = %v", err)
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	if _, err := Load("  "); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestMissingCredentials(t *testing.T) {
	dir := t.TempDir()
	clearCredentials(t)
	writeTestYAML(t, dir, DefaultConfigFile, "accounts: [alice]\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := strings.Join(cfg.MissingCredentials(), ",")
	want := "POSTNOTIFY_BEARER_TOKEN,POSTNOTIFY_PUSHOVER_APP_TOKEN,POSTNOTIFY_PUSHOVER_USER_KEY"
	if got != want {
		t.Errorf("missing = %q, want %q", got, want)
	}

	cfg.Notify.Provider = "stdout"
	cfg.Credentials.BearerToken = "x"
	if missing := cfg.MissingCredentials(); len(missing) != 0 {
		t.Errorf("stdout needs no notifier credentials, got %v", missing)
	}
}
