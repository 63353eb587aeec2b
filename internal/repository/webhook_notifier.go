package repository

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/sony/gobreaker"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/repository"
	xhttp "EstateDesk/pkg/http"
	xlogger "EstateDesk/pkg/logger"
)

var _ repository.Notifier = (*WebhookNotifier)(nil)

// notificationEnvelope is the JSON body posted for every delivery.
type notificationEnvelope struct {
	Event        string              `json:"event"`
	Channel      models.Channel      `json:"channel"`
	Destination  string              `json:"destination,omitempty"`
	Notification models.Notification `json:"notification"`
}

// WebhookNotifier posts webhook notifications straight to their destination
// URL. Email and SMS go through the relay URL when one is configured and are
// only logged otherwise. Each target URL has its own circuit breaker.
type WebhookNotifier struct {
	client   *xhttp.Client
	relayURL string
	logger   *xlogger.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewWebhookNotifier(client *xhttp.Client, relayURL string, logger *xlogger.Logger) *WebhookNotifier {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if client == nil {
		client = xhttp.NewClient()
	}
	return &WebhookNotifier{
		client:   client,
		relayURL: relayURL,
		logger:   logger.With(xlogger.String("component", "webhook_notifier")),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (w *WebhookNotifier) Deliver(ctx context.Context, channel models.Channel, destination string, n models.Notification) error {
	if destination == "" {
		return fmt.Errorf("%s destination empty", channel)
	}
	env := notificationEnvelope{Event: "price_alert", Channel: channel, Notification: n}

	target := destination
	switch channel {
	case models.ChannelWebhook:
	case models.ChannelEmail, models.ChannelSMS:
		if w.relayURL == "" {
			w.logger.Info("notification relay not configured, logged only",
				xlogger.String("channel", string(channel)),
				xlogger.String("notification_id", n.ID),
				xlogger.String("title", n.Title),
			)
			return nil
		}
		target = w.relayURL
		env.Destination = destination
	default:
		return fmt.Errorf("unsupported channel %q", channel)
	}

	_, err := w.breaker(target).Execute(func() (interface{}, error) {
		return nil, w.client.PostJSON(ctx, target, env, map[string]string{"X-EstateDesk-Event": env.Event})
	})
	if err != nil {
		return fmt.Errorf("post %s notification: %w", channel, err)
	}
	return nil
}

func (w *WebhookNotifier) breaker(target string) *gobreaker.CircuitBreaker {
	w.mu.Lock()
	defer w.mu.Unlock()
	cb, ok := w.breakers[target]
	if !ok {
		name := "notify"
		if u, err := url.Parse(target); err == nil && u.Host != "" {
			name += ":" + u.Host
		}
		cb = newBreaker(name, w.logger)
		w.breakers[target] = cb
	}
	return cb
}
