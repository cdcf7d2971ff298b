package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ppiankov/postnotify/internal/render"
)

// Telegram sends each message to a chat through the Bot API.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

type telegramOptions struct {
	endpoint string
	client   tgbotapi.HTTPClient
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*telegramOptions)

// WithTelegramEndpoint overrides the Bot API URL template ("…/bot%s/%s").
func WithTelegramEndpoint(endpoint string) TelegramOption {
	return func(o *telegramOptions) {
		if endpoint != "" {
			o.endpoint = endpoint
		}
	}
}

// WithTelegramHTTPClient replaces the default HTTP client.
func WithTelegramHTTPClient(hc tgbotapi.HTTPClient) TelegramOption {
	return func(o *telegramOptions) {
		if hc != nil {
			o.client = hc
		}
	}
}

// NewTelegram authenticates the bot with getMe. chatID is the default target;
// a non-empty device passed to Send overrides it.
func NewTelegram(token string, chatID int64, log zerolog.Logger, opts ...TelegramOption) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	o := telegramOptions{endpoint: tgbotapi.APIEndpoint, client: defaultHTTPClient()}
	for _, opt := range opts {
		opt(&o)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.client)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect bot: %w", err)
	}
	log.Debug().Str("bot", bot.Self.UserName).Msg("telegram bot ready")
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

func (t *Telegram) Send(ctx context.Context, msgs []render.Message, device string) Report {
	var rep Report

	chatID := t.chatID
	if device != "" {
		id, err := strconv.ParseInt(device, 10, 64)
		if err != nil {
			t.log.Error().Str("device", device).Msg("telegram device must be a numeric chat id")
			rep.Failed = len(msgs)
			return rep
		}
		chatID = id
	}
	if chatID == 0 {
		t.log.Error().Msg("telegram chat id is not configured")
		rep.Failed = len(msgs)
		return rep
	}

	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			t.log.Error().Err(err).Int("unsent", len(msgs)-i).Msg("delivery interrupted")
			rep.Failed += len(msgs) - i
			break
		}
		err := t.send(chatID, m)
		if err != nil {
			t.log.Error().Err(err).Int64("chat", chatID).Str("post_id", m.PostID).Msg("telegram delivery failed")
		}
		rep.record(ProviderTelegram, err)
	}
	return rep
}

func (t *Telegram) send(chatID int64, m render.Message) error {
	for _, part := range splitMessage(telegramText(m)) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.DisableWebPagePreview = true
		if _, err := t.bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

func telegramText(m render.Message) string {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(m.Body)
	}
	if m.URL != "" {
		b.WriteString("\n\n")
		b.WriteString(m.URL)
	}
	return b.String()
}
