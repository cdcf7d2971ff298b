package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/postnotify/internal/render"
)

const (
	PushoverURL = "https://api.pushover.net/1/messages.json"

	pushoverTitleLimit   = 250
	pushoverMessageLimit = 1024
	pushoverURLLimit     = 512
	maxErrorBody         = 512
)

// Pushover posts each message to the Pushover messages API.
type Pushover struct {
	endpoint string
	token    string
	user     string
	client   *http.Client
	log      zerolog.Logger
}

// PushoverOption configures a Pushover notifier.
type PushoverOption func(*Pushover)

// WithPushoverEndpoint overrides the messages API URL.
func WithPushoverEndpoint(endpoint string) PushoverOption {
	return func(p *Pushover) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// WithPushoverHTTPClient replaces the default http.Client.
func WithPushoverHTTPClient(hc *http.Client) PushoverOption {
	return func(p *Pushover) {
		if hc != nil {
			p.client = hc
		}
	}
}

func NewPushover(appToken, userKey string, log zerolog.Logger, opts ...PushoverOption) (*Pushover, error) {
	if strings.TrimSpace(appToken) == "" || strings.TrimSpace(userKey) == "" {
		return nil, errors.New("pushover: app token and user key are required")
	}
	p := &Pushover{
		endpoint: PushoverURL,
		token:    appToken,
		user:     userKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pushover) Send(ctx context.Context, msgs []render.Message, device string) Report {
	var rep Report
	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			p.log.Error().Err(err).Int("unsent", len(msgs)-i).Msg("delivery interrupted")
			rep.Failed += len(msgs) - i
			break
		}
		err := p.send(ctx, m, device)
		if err != nil {
			p.log.Error().Err(err).Str("post_id", m.PostID).Msg("pushover delivery failed")
		}
		rep.record(ProviderPushover, err)
	}
	return rep
}

func (p *Pushover) send(ctx context.Context, m render.Message, device string) error {
	body := m.Body
	if strings.TrimSpace(body) == "" {
		// The API rejects an empty message.
		body = m.Title
	}

	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.user)
	form.Set("title", render.Truncate(m.Title, pushoverTitleLimit))
	form.Set("message", render.Truncate(body, pushoverMessageLimit))
	if m.URL != "" && len(m.URL) <= pushoverURLLimit {
		form.Set("url", m.URL)
	}
	if device != "" {
		form.Set("device", device)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("pushover: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
