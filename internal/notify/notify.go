// Package notify delivers rendered messages to a push provider.
package notify

import (
	"context"

	"github.com/ppiankov/postnotify/internal/metrics"
	"github.com/ppiankov/postnotify/internal/render"
)

const (
	ProviderPushover = "pushover"
	ProviderTelegram = "telegram"
	ProviderStdout   = "stdout"
)

// Notifier sends messages in order. A failed delivery is logged and counted;
// the remaining messages are still sent.
type Notifier interface {
	Send(ctx context.Context, msgs []render.Message, device string) Report
}

// Report counts delivery outcomes.
type Report struct {
	Sent   int
	Failed int
}

// AllFailed reports whether there was something to send and nothing arrived.
func (r Report) AllFailed() bool {
	return r.Failed > 0 && r.Sent == 0
}

func (r *Report) record(provider string, err error) {
	if err != nil {
		r.Failed++
		metrics.NotificationsTotal.WithLabelValues(provider, "failed").Inc()
		return
	}
	r.Sent++
	metrics.NotificationsTotal.WithLabelValues(provider, "sent").Inc()
}
